package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/gateway"
	"github.com/kursadbilgin/group-enroller/internal/observability"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"go.uber.org/zap"
)

const defaultRecentOutcomes = 200

// AccountRuntime bundles what one account needs to run batches.
type AccountRuntime struct {
	Runner BatchRunner
	// Session is optional; when set the registry starts it on Add.
	Session   gateway.SessionStarter
	AutoStart bool
}

// AccountFactory builds the runtime for a newly added account.
type AccountFactory func(accountID string) (*AccountRuntime, error)

// BatchLocker guards an account against batches running in other processes.
type BatchLocker interface {
	TryLock(ctx context.Context, accountID string) (func(context.Context) error, error)
}

// BatchDispatcher starts a batch for an account without waiting for it.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, accountID string, correlationID string) error
}

type recordNotifier interface {
	OnRecord(fn func(domain.EnrollmentRecord))
}

// Account is a point-in-time view of one managed account.
type Account struct {
	ID          string               `json:"id"`
	Status      domain.AccountStatus `json:"status"`
	HasQRCode   bool                 `json:"hasQrCode"`
	AutoStart   bool                 `json:"autoStart"`
	LastError   string               `json:"lastError,omitempty"`
	LastSummary *domain.BatchSummary `json:"lastSummary,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type accountEntry struct {
	account Account
	qrCode  string
	runtime *AccountRuntime
	recent  []domain.EnrollmentRecord
	// running is set while a batch is in flight, independent of Status,
	// which session events may overwrite mid-run.
	running bool
}

var _ BatchDispatcher = (*AccountRegistry)(nil)

// AccountRegistry owns every account of the process and serializes batch
// runs per account.
type AccountRegistry struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry

	factory     AccountFactory
	ledgers     repository.LedgerRepository
	outcomes    repository.OutcomeRepository
	locker      BatchLocker
	webhookURL  func(accountID string) string
	recentLimit int
	logger      *zap.Logger
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAccountRegistry(
	factory AccountFactory,
	ledgers repository.LedgerRepository,
	outcomes repository.OutcomeRepository,
	locker BatchLocker,
	webhookURL func(accountID string) string,
	logger *zap.Logger,
) (*AccountRegistry, error) {
	if factory == nil {
		return nil, fmt.Errorf("account factory is required")
	}
	if ledgers == nil || outcomes == nil {
		return nil, fmt.Errorf("ledger and outcome repositories are required")
	}
	if webhookURL == nil {
		webhookURL = func(string) string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &AccountRegistry{
		accounts:    make(map[string]*accountEntry),
		factory:     factory,
		ledgers:     ledgers,
		outcomes:    outcomes,
		locker:      locker,
		webhookURL:  webhookURL,
		recentLimit: defaultRecentOutcomes,
		logger:      logger,
		now:         time.Now,
		baseCtx:     baseCtx,
		cancel:      cancel,
	}, nil
}

// Add registers a new account and starts its platform session. A session
// start failure leaves the account in the error state rather than failing Add.
func (r *AccountRegistry) Add(ctx context.Context, accountID string) (Account, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return Account{}, err
	}

	r.mu.Lock()
	if _, exists := r.accounts[accountID]; exists {
		r.mu.Unlock()
		return Account{}, fmt.Errorf("%w: account %s already exists", domain.ErrConflict, accountID)
	}

	runtime, err := r.factory(accountID)
	if err != nil {
		r.mu.Unlock()
		return Account{}, fmt.Errorf("failed to build account %s: %w", accountID, err)
	}
	if runtime == nil || runtime.Runner == nil {
		r.mu.Unlock()
		return Account{}, fmt.Errorf("account factory returned no runner for %s", accountID)
	}

	entry := &accountEntry{
		account: Account{
			ID:        accountID,
			Status:    domain.AccountStatusInitializing,
			AutoStart: runtime.AutoStart,
			UpdatedAt: r.now().UTC(),
		},
		runtime: runtime,
	}
	if notifier, ok := runtime.Runner.(recordNotifier); ok {
		notifier.OnRecord(func(rec domain.EnrollmentRecord) {
			r.pushRecent(accountID, rec)
		})
	}
	r.accounts[accountID] = entry
	r.mu.Unlock()

	r.logger.Info("account added", zap.String("accountId", accountID), zap.Bool("autoStart", runtime.AutoStart))

	if runtime.Session != nil {
		if err := runtime.Session.StartSession(ctx, r.webhookURL(accountID)); err != nil {
			r.logger.Error("failed to start account session", zap.String("accountId", accountID), zap.Error(err))
			r.update(accountID, func(e *accountEntry) {
				e.account.Status = domain.AccountStatusError
				e.account.LastError = err.Error()
			})
		}
	}

	return r.Get(accountID)
}

func (r *AccountRegistry) Get(accountID string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return entry.account, nil
}

// List returns all accounts ordered by id.
func (r *AccountRegistry) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]Account, 0, len(r.accounts))
	for _, entry := range r.accounts {
		accounts = append(accounts, entry.account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts
}

// HandleEvent applies a session event. Accounts flagged for auto start get a
// batch as soon as they become ready.
func (r *AccountRegistry) HandleEvent(ctx context.Context, accountID string, event domain.SessionEvent) (Account, error) {
	if event.Type == domain.SessionEventQR && event.QRCode == "" {
		return Account{}, fmt.Errorf("%w: qr event without payload", domain.ErrValidation)
	}

	r.mu.Lock()
	entry, ok := r.accounts[accountID]
	if !ok {
		r.mu.Unlock()
		return Account{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}

	previous := entry.account.Status
	next, err := domain.NextAccountStatus(previous, event.Type)
	if err != nil {
		r.mu.Unlock()
		return Account{}, err
	}

	if entry.running && next == domain.AccountStatusReady {
		next = domain.AccountStatusRunning
	}
	entry.account.Status = next
	switch event.Type {
	case domain.SessionEventQR:
		entry.qrCode = event.QRCode
	case domain.SessionEventReady:
		entry.qrCode = ""
		entry.account.LastError = ""
	default:
		entry.qrCode = ""
		entry.account.LastError = event.Reason
	}
	entry.account.HasQRCode = entry.qrCode != ""
	entry.account.UpdatedAt = r.now().UTC()

	autoStart := next == domain.AccountStatusReady && previous != domain.AccountStatusReady && entry.runtime.AutoStart && !entry.running
	snapshot := entry.account
	r.mu.Unlock()

	r.logger.Info("account session event",
		zap.String("accountId", accountID),
		zap.String("event", string(event.Type)),
		zap.String("from", previous.String()),
		zap.String("to", next.String()),
	)

	if autoStart {
		if err := r.TriggerBatch(ctx, accountID); err != nil {
			r.logger.Warn("auto start skipped", zap.String("accountId", accountID), zap.Error(err))
		} else {
			snapshot.Status = domain.AccountStatusRunning
		}
	}
	return snapshot, nil
}

// CanStart reports why a batch could not start right now, if anything.
func (r *AccountRegistry) CanStart(accountID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return startError(entry)
}

// RunBatch runs one batch and waits for it.
func (r *AccountRegistry) RunBatch(ctx context.Context, accountID string) (*domain.BatchSummary, error) {
	runner, err := r.beginRun(accountID)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, accountID, runner)
}

// TriggerBatch starts one batch in the background. The batch outlives ctx
// and stops only when the registry is closed.
func (r *AccountRegistry) TriggerBatch(ctx context.Context, accountID string) error {
	runner, err := r.beginRun(accountID)
	if err != nil {
		return err
	}

	runCtx := r.baseCtx
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		runCtx = observability.WithCorrelationID(runCtx, correlationID)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.run(runCtx, accountID, runner); err != nil {
			r.logger.Error("background batch failed", zap.String("accountId", accountID), zap.Error(err))
		}
	}()
	return nil
}

func (r *AccountRegistry) Dispatch(ctx context.Context, accountID string, correlationID string) error {
	if correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}
	return r.TriggerBatch(ctx, accountID)
}

// QRCode returns the pending pairing payload of an account.
func (r *AccountRegistry) QRCode(accountID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return "", fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	if entry.qrCode == "" {
		return "", fmt.Errorf("%w: no pending qr code for account %s", domain.ErrNotFound, accountID)
	}
	return entry.qrCode, nil
}

// RecentOutcomes returns the records of the latest runs, oldest first.
func (r *AccountRegistry) RecentOutcomes(accountID string) ([]domain.EnrollmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return append([]domain.EnrollmentRecord{}, entry.recent...), nil
}

func (r *AccountRegistry) Ledger(ctx context.Context, accountID string) (*domain.ProgressLedger, error) {
	if _, err := r.Get(accountID); err != nil {
		return nil, err
	}
	return r.ledgers.Load(ctx, accountID)
}

func (r *AccountRegistry) Outcomes(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error) {
	if _, err := r.Get(accountID); err != nil {
		return nil, err
	}
	return r.outcomes.List(ctx, accountID)
}

// Close stops background batches and waits for them until ctx expires.
func (r *AccountRegistry) Close(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running batches: %w", ctx.Err())
	}
}

func (r *AccountRegistry) beginRun(accountID string) (BatchRunner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	if err := startError(entry); err != nil {
		return nil, err
	}

	entry.running = true
	entry.account.Status = domain.AccountStatusRunning
	entry.account.UpdatedAt = r.now().UTC()
	return entry.runtime.Runner, nil
}

func (r *AccountRegistry) run(ctx context.Context, accountID string, runner BatchRunner) (*domain.BatchSummary, error) {
	if r.locker != nil {
		unlock, err := r.locker.TryLock(ctx, accountID)
		if err != nil {
			r.finishRun(accountID, nil, err)
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release batch lock", zap.String("accountId", accountID), zap.Error(err))
			}
		}()
	}

	summary, err := runner.RunBatch(ctx)
	r.finishRun(accountID, summary, err)
	return summary, err
}

func (r *AccountRegistry) finishRun(accountID string, summary *domain.BatchSummary, err error) {
	r.update(accountID, func(e *accountEntry) {
		e.running = false
		if summary != nil {
			e.account.LastSummary = summary
		}
		// an event moved the account on while the batch ran; its status
		// and reason win
		if e.account.Status != domain.AccountStatusRunning {
			return
		}
		e.account.Status = domain.AccountStatusReady
		e.account.LastError = ""
		if err != nil && !errors.Is(err, context.Canceled) {
			e.account.LastError = err.Error()
		}
	})
}

func (r *AccountRegistry) pushRecent(accountID string, rec domain.EnrollmentRecord) {
	r.update(accountID, func(e *accountEntry) {
		e.recent = append(e.recent, rec)
		if overflow := len(e.recent) - r.recentLimit; overflow > 0 {
			e.recent = append([]domain.EnrollmentRecord(nil), e.recent[overflow:]...)
		}
	})
}

func (r *AccountRegistry) update(accountID string, fn func(e *accountEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.accounts[accountID]
	if !ok {
		return
	}
	fn(entry)
	entry.account.UpdatedAt = r.now().UTC()
}

func startError(entry *accountEntry) error {
	account := entry.account
	switch {
	case entry.running || account.Status == domain.AccountStatusRunning:
		return fmt.Errorf("%w: account %s", domain.ErrBatchInProgress, account.ID)
	case !account.Status.CanRunBatch():
		return fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotReady, account.ID, account.Status)
	}
	return nil
}
