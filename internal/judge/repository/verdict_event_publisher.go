package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ojengine/internal/common/mq"
	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"
)

// VerdictEventPublisher publishes final verdicts for downstream consumers.
type VerdictEventPublisher interface {
	PublishVerdict(ctx context.Context, event model.VerdictEvent) error
}

// MQVerdictEventPublisher publishes verdict events to a message queue.
type MQVerdictEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQVerdictEventPublisher creates a publisher on topic.
func NewMQVerdictEventPublisher(producer mq.Producer, topic string) *MQVerdictEventPublisher {
	return &MQVerdictEventPublisher{producer: producer, topic: topic}
}

// PublishVerdict publishes one event keyed by submission id.
func (p *MQVerdictEventPublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if event.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if !event.Verdict.IsTerminal() {
		return appErr.Newf(appErr.InvalidVerdict, "verdict %s is not terminal", event.Verdict)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = strconv.FormatInt(event.SubmissionID, 10)
	message.SetHeader("verdict", event.Verdict.Code())
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueuePublishFailed, "publish verdict event failed")
	}
	return nil
}
