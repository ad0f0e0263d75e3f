package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ojengine/internal/common/mq"
	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"
)

// Dispatcher is the producer side of the judge queue.
type Dispatcher struct {
	producer mq.Producer
	topic    string
}

// NewDispatcher creates a dispatcher publishing to topic.
func NewDispatcher(producer mq.Producer, topic string) (*Dispatcher, error) {
	if producer == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("producer is required")
	}
	if topic == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("topic is required")
	}
	return &Dispatcher{producer: producer, topic: topic}, nil
}

// Enqueue publishes {"submission_id": id}.
func (d *Dispatcher) Enqueue(ctx context.Context, submissionID int64) error {
	if submissionID <= 0 {
		return appErr.ValidationError("submission_id", "must be positive")
	}
	payload, err := json.Marshal(model.JudgeMessage{SubmissionID: submissionID})
	if err != nil {
		return fmt.Errorf("marshal judge message failed: %w", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = strconv.FormatInt(submissionID, 10)
	if err := d.producer.Publish(ctx, d.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.QueuePublishFailed, "enqueue submission %d failed", submissionID)
	}
	return nil
}
