package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"ojengine/internal/common/mq"
	"ojengine/internal/judge/metrics"
	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"
	"ojengine/pkg/utils/contextkey"
	"ojengine/pkg/utils/logger"

	"go.uber.org/zap"
)

// Judger judges one submission.
type Judger interface {
	Judge(ctx context.Context, submissionID int64) error
}

// WorkerConfig wires a worker loop to its queue.
type WorkerConfig struct {
	Judge         Judger
	Consumer      mq.Consumer
	Topic         string
	ConsumerGroup string
	Metrics       Metrics
}

// Worker consumes judge jobs one at a time and never lets a single job stop the loop.
type Worker struct {
	judge    Judger
	consumer mq.Consumer
	topic    string
	group    string
	metrics  Metrics
}

// NewWorker creates a worker loop.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Judge == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("judge is required")
	}
	if cfg.Consumer == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("consumer is required")
	}
	if cfg.Topic == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("topic is required")
	}
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Worker{
		judge:    cfg.Judge,
		consumer: cfg.Consumer,
		topic:    cfg.Topic,
		group:    cfg.ConsumerGroup,
		metrics:  m,
	}, nil
}

// Run subscribes and blocks until ctx is cancelled, then stops the consumer.
func (w *Worker) Run(ctx context.Context) error {
	opts := &mq.SubscribeOptions{
		ConsumerGroup: w.group,
		Concurrency:   1,
		MaxRetries:    0,
	}
	if err := w.consumer.Subscribe(ctx, w.topic, w.HandleMessage, opts); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "subscribe to %s failed", w.topic)
	}
	if err := w.consumer.Start(); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "start consumer failed")
	}
	logger.Info(ctx, "judge worker started", zap.String("topic", w.topic))

	<-ctx.Done()

	logger.Info(context.Background(), "judge worker stopping")
	if err := w.consumer.Stop(); err != nil {
		return fmt.Errorf("stop consumer failed: %w", err)
	}
	return nil
}

// HandleMessage judges one job. It always acknowledges: failures and panics are
// logged and counted, and the loop moves on.
func (w *Worker) HandleMessage(ctx context.Context, msg *mq.Message) (err error) {
	if msg == nil {
		return nil
	}
	ctx = context.WithValue(ctx, contextkey.MessageID, msg.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge job panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			w.metrics.ObserveJob(metrics.JobPanic)
			err = nil
		}
	}()

	job, decodeErr := model.DecodeJudgeMessage(msg.Body)
	if decodeErr != nil {
		logger.Warn(ctx, "malformed judge job dropped", zap.ByteString("body", msg.Body), zap.Error(decodeErr))
		w.metrics.ObserveAnomaly(metrics.AnomalyMalformedJob)
		w.metrics.ObserveJob(metrics.JobError)
		return nil
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, job.SubmissionID)

	if judgeErr := w.judge.Judge(ctx, job.SubmissionID); judgeErr != nil {
		logger.Error(ctx, "judge job failed",
			zap.Int("code", int(appErr.GetCode(judgeErr))),
			zap.Error(judgeErr),
		)
		w.metrics.ObserveJob(metrics.JobError)
		return nil
	}
	w.metrics.ObserveJob(metrics.JobOK)
	return nil
}
