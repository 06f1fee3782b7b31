package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/observability"
	"github.com/kursadbilgin/group-enroller/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// BatchTrigger starts a batch without waiting for it.
type BatchTrigger interface {
	TriggerBatch(ctx context.Context, accountID string) error
}

// TriggerWorker consumes batch start requests and hands them to the registry.
type TriggerWorker struct {
	consumer    queue.Consumer
	trigger     BatchTrigger
	concurrency int
	logger      *zap.Logger
}

func NewTriggerWorker(consumer queue.Consumer, trigger BatchTrigger, concurrency int, logger *zap.Logger) (*TriggerWorker, error) {
	if consumer == nil || trigger == nil {
		return nil, errors.New("trigger worker requires a consumer and a batch trigger")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TriggerWorker{
		consumer:    consumer,
		trigger:     trigger,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start consumes the work queues until context cancellation.
func (w *TriggerWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started", zap.Int("workerId", workerID), zap.String("queue", queueName))

			if err := w.consumer.Consume(groupCtx, queueName, w.processMessage); err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped", zap.Int("workerId", workerID), zap.String("queue", queueName))
			return nil
		})
	}

	return g.Wait()
}

func (w *TriggerWorker) processMessage(ctx context.Context, msg queue.BatchTriggerMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(w.logger, ctx).With(zap.String("accountId", msg.AccountID))

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: invalid batch trigger: %w", queue.ErrPermanent, err)
	}

	err := w.trigger.TriggerBatch(ctx, msg.AccountID)
	switch {
	case err == nil:
		logger.Info("batch triggered from queue")
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	case errors.Is(err, domain.ErrBatchInProgress), errors.Is(err, domain.ErrAccountNotReady):
		// the next cycle picks the account up again
		logger.Info("queued batch skipped", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("failed to trigger batch: %w", err)
	}
}
