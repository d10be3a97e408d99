package job

import (
	"context"
	"fmt"
	"time"

	"threadspost/internal/config"
	"threadspost/internal/infrastructure/logger"
	"threadspost/internal/infrastructure/metrics"
	"threadspost/internal/model"
	"threadspost/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageSender ships one message to the broker.
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	batchSize  int
	maxRetry   int
	log        *zap.Logger
}

func NewOutboxSender(db *gorm.DB, sender MessageSender, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		batchSize:  cfg.Scheduler.OutboxBatchSize,
		maxRetry:   cfg.Scheduler.OutboxMaxRetry,
		log:        logger.Named("OutboxSender"),
	}
}

// Run ships one batch of pending messages and returns how many went out.
// Only a failure to read the outbox is returned as an error.
func (s *OutboxSender) Run(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(JobOutbox).Observe(time.Since(start).Seconds())
	}()

	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		metrics.JobRuns.WithLabelValues(JobOutbox, "error").Inc()
		return 0, fmt.Errorf("load pending outbox messages: %w", err)
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	metrics.JobRuns.WithLabelValues(JobOutbox, "ok").Inc()
	return sent, nil
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	log := s.log.With(zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))

	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxSent.WithLabelValues("sent").Inc()
		if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
			// the message is out; a later batch will send it again
			log.Error("mark outbox message sent failed", zap.Error(err))
			return false
		}
		log.Debug("outbox message sent")
		return true
	}

	metrics.OutboxSent.WithLabelValues("error").Inc()
	exhausted, updateErr := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetry)
	if updateErr != nil {
		log.Error("record outbox failure failed", zap.Error(updateErr))
		return false
	}
	if exhausted {
		log.Error("outbox message exceeded max retries, marked failed",
			zap.Int("retry_count", msg.RetryCount+1), zap.Error(err))
		return false
	}
	log.Warn("outbox message send failed", zap.Int("retry_count", msg.RetryCount+1), zap.Error(err))
	return false
}
