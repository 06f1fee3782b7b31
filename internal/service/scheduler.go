package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	"go.uber.org/zap"
)

const defaultSchedulerInterval = time.Hour

// AccountLister lists the accounts the scheduler cycles over.
type AccountLister interface {
	List() []Account
}

// Scheduler periodically starts a batch for every ready account.
type Scheduler struct {
	accounts         AccountLister
	dispatcher       BatchDispatcher
	logger           *zap.Logger
	interval         time.Duration
	newCorrelationID func() string
}

func NewScheduler(
	accounts AccountLister,
	dispatcher BatchDispatcher,
	interval time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	if accounts == nil || dispatcher == nil {
		return nil, errors.New("scheduler requires an account lister and a dispatcher")
	}
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		accounts:         accounts,
		dispatcher:       dispatcher,
		logger:           logger,
		interval:         interval,
		newCorrelationID: uuid.NewString,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle returns the number of batches it dispatched.
func (s *Scheduler) cycle(ctx context.Context) int {
	dispatched := 0
	for _, account := range s.accounts.List() {
		if account.Status != domain.AccountStatusReady {
			continue
		}

		correlationID := s.newCorrelationID()
		err := s.dispatcher.Dispatch(ctx, account.ID, correlationID)
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, domain.ErrBatchInProgress), errors.Is(err, domain.ErrAccountNotReady):
			s.logger.Debug("scheduled batch skipped", zap.String("accountId", account.ID), zap.Error(err))
		default:
			if ctx.Err() != nil {
				return dispatched
			}
			s.logger.Error("failed to dispatch scheduled batch",
				zap.String("accountId", account.ID),
				zap.String("correlationId", correlationID),
				zap.Error(err),
			)
		}
	}
	return dispatched
}
