package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/queue"
	"go.uber.org/zap"
)

// StartChecker reports whether an account could start a batch now.
type StartChecker interface {
	CanStart(accountID string) error
}

var _ BatchDispatcher = (*QueueDispatcher)(nil)

// QueueDispatcher hands batch starts to the trigger queue so that a worker
// process runs them.
type QueueDispatcher struct {
	checker   StartChecker
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewQueueDispatcher(checker StartChecker, publisher queue.Publisher, logger *zap.Logger) (*QueueDispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueDispatcher{
		checker:   checker,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, accountID string, correlationID string) error {
	if d.checker != nil {
		if err := d.checker.CanStart(accountID); err != nil {
			return err
		}
	}

	msg := queue.BatchTriggerMessage{
		AccountID:     accountID,
		CorrelationID: correlationID,
		RequestedAt:   d.now().UTC(),
	}
	if err := d.publisher.Publish(ctx, queue.BatchQueue, msg); err != nil {
		return fmt.Errorf("failed to enqueue batch for account %s: %w", accountID, err)
	}

	d.logger.Info("batch enqueued",
		zap.String("accountId", accountID),
		zap.String("correlationId", correlationID),
	)
	return nil
}
