package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/group-enroller/internal/contacts"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/observability"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 1
	defaultProgressEvery = 10
)

// Batch failure reasons used as metric labels.
const (
	failureLedgerIO      = "ledger_io"
	failureOutcomeLogIO  = "outcome_log_io"
	failureContactSource = "contact_source"
	failureGroupCapacity = "group_capacity"
	failureCancelled     = "cancelled"
)

type OrchestratorSettings struct {
	BatchSize     int
	PacingDelay   time.Duration
	ProgressEvery int
}

// BatchRunner runs one batch for a fixed account.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*domain.BatchSummary, error)
}

var _ BatchRunner = (*BatchOrchestrator)(nil)

// BatchOrchestrator drives one account's campaign forward by one slice of
// contacts per run. Contacts are processed strictly in source order; each
// record is appended to the outcome log before the ledger offset moves.
type BatchOrchestrator struct {
	accountID string
	ledgers   repository.LedgerRepository
	outcomes  repository.OutcomeRepository
	source    contacts.Source
	capacity  GroupEnsurer
	enroller  ContactEnroller
	settings  OrchestratorSettings
	metrics   *observability.Metrics
	logger    *zap.Logger
	onRecord  func(domain.EnrollmentRecord)
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	newRunID  func() string
}

func NewBatchOrchestrator(
	accountID string,
	ledgers repository.LedgerRepository,
	outcomes repository.OutcomeRepository,
	source contacts.Source,
	capacity GroupEnsurer,
	enroller ContactEnroller,
	settings OrchestratorSettings,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*BatchOrchestrator, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	if ledgers == nil || outcomes == nil {
		return nil, fmt.Errorf("ledger and outcome repositories are required")
	}
	if source == nil {
		return nil, fmt.Errorf("contact source is required")
	}
	if capacity == nil || enroller == nil {
		return nil, fmt.Errorf("capacity manager and enroller are required")
	}
	if settings.BatchSize < 1 {
		settings.BatchSize = defaultBatchSize
	}
	if settings.PacingDelay < 0 {
		settings.PacingDelay = 0
	}
	if settings.ProgressEvery < 1 {
		settings.ProgressEvery = defaultProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchOrchestrator{
		accountID: accountID,
		ledgers:   ledgers,
		outcomes:  outcomes,
		source:    source,
		capacity:  capacity,
		enroller:  enroller,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		newRunID:  uuid.NewString,
	}, nil
}

// OnRecord registers a callback invoked after each record is durable.
func (o *BatchOrchestrator) OnRecord(fn func(domain.EnrollmentRecord)) {
	o.onRecord = fn
}

// RunBatch processes the next slice of contacts. A contact already in flight
// is always finished; cancellation is honoured during the pacing pause and
// returns the partial summary with ctx.Err().
func (o *BatchOrchestrator) RunBatch(ctx context.Context) (*domain.BatchSummary, error) {
	runID := o.newRunID()
	ctx = observability.WithAccountID(ctx, o.accountID)
	logger := observability.WithContextLogger(o.logger, ctx).With(zap.String("runId", runID))

	o.metrics.IncBatchInFlight(o.accountID)
	defer o.metrics.DecBatchInFlight(o.accountID)

	summary := &domain.BatchSummary{
		RunID:     runID,
		AccountID: o.accountID,
		StartedAt: o.now().UTC(),
	}

	if err := ctx.Err(); err != nil {
		return o.abort(logger, summary, failureCancelled, err)
	}

	ledger, err := o.ledgers.Load(ctx, o.accountID)
	if err != nil {
		return o.abort(logger, summary, failureLedgerIO, fmt.Errorf("%w: load ledger: %w", domain.ErrLedgerIO, err))
	}
	summary.StartOffset = ledger.LastProcessedOffset
	summary.EndOffset = ledger.LastProcessedOffset

	batch, err := o.source.ReadContacts(ctx, ledger.LastProcessedOffset, o.settings.BatchSize)
	if err != nil {
		return o.abort(logger, summary, failureContactSource, fmt.Errorf("failed to read contacts: %w", err))
	}
	if len(batch) == 0 {
		summary.FinishedAt = o.now().UTC()
		logger.Info("no contacts left to process", zap.Int("offset", ledger.LastProcessedOffset))
		return summary, nil
	}

	group, err := o.capacity.EnsureGroup(ctx, ledger)
	if err != nil {
		return o.abort(logger, summary, failureGroupCapacity, err)
	}
	summary.GroupID = group.ID
	summary.GroupCreated = group.Created

	if group.Created {
		if err := o.ledgers.Save(ctx, ledger); err != nil {
			return o.abort(logger, summary, failureLedgerIO, fmt.Errorf("%w: save ledger after group creation: %w", domain.ErrLedgerIO, err))
		}
	}

	logger.Info("batch started",
		zap.Int("offset", ledger.LastProcessedOffset),
		zap.Int("contacts", len(batch)),
		zap.String("groupId", group.ID),
		zap.Int("memberCount", group.MemberCount),
	)

	for i, contact := range batch {
		if i > 0 {
			if err := o.sleep(ctx, o.settings.PacingDelay); err != nil {
				return o.abort(logger, summary, failureCancelled, err)
			}
		}

		inFlight := context.WithoutCancel(ctx)
		record := o.enroller.Enroll(inFlight, contact, group)

		if err := o.outcomes.Append(inFlight, o.accountID, record); err != nil {
			return o.abort(logger, summary, failureOutcomeLogIO, fmt.Errorf("%w: append %s: %w", domain.ErrOutcomeLogIO, contact.Phone, err))
		}
		ledger.Advance()
		if err := o.ledgers.Save(inFlight, ledger); err != nil {
			return o.abort(logger, summary, failureLedgerIO, fmt.Errorf("%w: save ledger at offset %d: %w", domain.ErrLedgerIO, ledger.LastProcessedOffset, err))
		}

		summary.Record(record)
		summary.EndOffset = ledger.LastProcessedOffset
		o.metrics.IncContactProcessed(o.accountID, record.Status.String())
		if record.InviteSent {
			o.metrics.IncInviteSent(o.accountID)
		}
		if o.onRecord != nil {
			o.onRecord(record)
		}

		if summary.Total%o.settings.ProgressEvery == 0 {
			logger.Info("batch progress", summaryFields(summary)...)
		}
	}

	summary.FinishedAt = o.now().UTC()
	o.metrics.ObserveBatchDuration(o.accountID, summary.FinishedAt.Sub(summary.StartedAt))
	logger.Info("batch finished", summaryFields(summary)...)
	return summary, nil
}

func (o *BatchOrchestrator) abort(logger *zap.Logger, summary *domain.BatchSummary, reason string, err error) (*domain.BatchSummary, error) {
	summary.FinishedAt = o.now().UTC()
	o.metrics.IncBatchFailed(o.accountID, reason)
	o.metrics.ObserveBatchDuration(o.accountID, summary.FinishedAt.Sub(summary.StartedAt))

	fields := append(summaryFields(summary), zap.String("reason", reason), zap.Error(err))
	if reason == failureCancelled {
		logger.Warn("batch cancelled", fields...)
	} else {
		logger.Error("batch aborted", fields...)
	}
	return summary, err
}

func summaryFields(s *domain.BatchSummary) []zap.Field {
	return []zap.Field{
		zap.Int("processed", s.Total),
		zap.Int("valid", s.Valid),
		zap.Int("privateInviteOnly", s.PrivateInviteOnly),
		zap.Int("unregistered", s.Unregistered),
		zap.Int("unknownError", s.UnknownError),
		zap.Int("invitesSent", s.InvitesSent),
		zap.Int("startOffset", s.StartOffset),
		zap.Int("endOffset", s.EndOffset),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
