package service

import (
	"context"
	"sync"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/gateway"
	"github.com/kursadbilgin/group-enroller/internal/queue"
)

type fakeGateway struct {
	resolveIdentityFn  func(ctx context.Context, phone string) (string, bool, error)
	addParticipantsFn  func(ctx context.Context, groupID string, phones []string, opts gateway.AddOptions) (map[string]gateway.AddResult, error)
	sendInviteFn       func(ctx context.Context, groupID string, phone string) error
	createGroupFn      func(ctx context.Context, name string, participants []string) (string, error)
	promoteFn          func(ctx context.Context, groupID string, phones []string) error
	restrictPostingFn  func(ctx context.Context, groupID string, adminsOnly bool) error
	restrictInfoEditFn func(ctx context.Context, groupID string, adminsOnly bool) error
	getGroupFn         func(ctx context.Context, groupID string) (*domain.Group, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeGateway) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.calls {
		if call == op {
			n++
		}
	}
	return n
}

func (f *fakeGateway) ResolveIdentity(ctx context.Context, phone string) (string, bool, error) {
	f.record(gateway.OpResolveIdentity)
	if f.resolveIdentityFn != nil {
		return f.resolveIdentityFn(ctx, phone)
	}
	return phone, true, nil
}

func (f *fakeGateway) AddParticipants(ctx context.Context, groupID string, phones []string, opts gateway.AddOptions) (map[string]gateway.AddResult, error) {
	f.record(gateway.OpAddParticipants)
	if f.addParticipantsFn != nil {
		return f.addParticipantsFn(ctx, groupID, phones, opts)
	}
	results := make(map[string]gateway.AddResult, len(phones))
	for _, phone := range phones {
		results[phone] = gateway.AddResult{Code: domain.CodeAdded}
	}
	return results, nil
}

func (f *fakeGateway) SendInvite(ctx context.Context, groupID string, phone string) error {
	f.record(gateway.OpSendInvite)
	if f.sendInviteFn != nil {
		return f.sendInviteFn(ctx, groupID, phone)
	}
	return nil
}

func (f *fakeGateway) CreateGroup(ctx context.Context, name string, participants []string) (string, error) {
	f.record(gateway.OpCreateGroup)
	if f.createGroupFn != nil {
		return f.createGroupFn(ctx, name, participants)
	}
	return "new-group@g.us", nil
}

func (f *fakeGateway) Promote(ctx context.Context, groupID string, phones []string) error {
	f.record(gateway.OpPromote)
	if f.promoteFn != nil {
		return f.promoteFn(ctx, groupID, phones)
	}
	return nil
}

func (f *fakeGateway) RestrictPosting(ctx context.Context, groupID string, adminsOnly bool) error {
	f.record(gateway.OpRestrictPosting)
	if f.restrictPostingFn != nil {
		return f.restrictPostingFn(ctx, groupID, adminsOnly)
	}
	return nil
}

func (f *fakeGateway) RestrictInfoEdit(ctx context.Context, groupID string, adminsOnly bool) error {
	f.record(gateway.OpRestrictInfoEdit)
	if f.restrictInfoEditFn != nil {
		return f.restrictInfoEditFn(ctx, groupID, adminsOnly)
	}
	return nil
}

func (f *fakeGateway) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	f.record(gateway.OpGetGroup)
	if f.getGroupFn != nil {
		return f.getGroupFn(ctx, groupID)
	}
	return &domain.Group{ID: groupID}, nil
}

// memoryLedgerRepo keeps cloned ledgers so callers cannot mutate stored state.
type memoryLedgerRepo struct {
	mu      sync.Mutex
	ledgers map[string]*domain.ProgressLedger
	saves   int
	loadErr error
	saveFn  func(ledger *domain.ProgressLedger) error
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{ledgers: make(map[string]*domain.ProgressLedger)}
}

func (r *memoryLedgerRepo) Load(ctx context.Context, accountID string) (*domain.ProgressLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return nil, r.loadErr
	}
	if ledger, ok := r.ledgers[accountID]; ok {
		return ledger.Clone(), nil
	}
	return domain.NewProgressLedger(accountID), nil
}

func (r *memoryLedgerRepo) Save(ctx context.Context, ledger *domain.ProgressLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveFn != nil {
		if err := r.saveFn(ledger); err != nil {
			return err
		}
	}
	r.saves++
	r.ledgers[ledger.AccountID] = ledger.Clone()
	return nil
}

func (r *memoryLedgerRepo) get(accountID string) *domain.ProgressLedger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ledger, ok := r.ledgers[accountID]; ok {
		return ledger.Clone()
	}
	return nil
}

type memoryOutcomeRepo struct {
	mu       sync.Mutex
	records  map[string][]domain.EnrollmentRecord
	appendFn func(record domain.EnrollmentRecord) error
}

func newMemoryOutcomeRepo() *memoryOutcomeRepo {
	return &memoryOutcomeRepo{records: make(map[string][]domain.EnrollmentRecord)}
}

func (r *memoryOutcomeRepo) Append(ctx context.Context, accountID string, record domain.EnrollmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.appendFn != nil {
		if err := r.appendFn(record); err != nil {
			return err
		}
	}
	r.records[accountID] = append(r.records[accountID], record)
	return nil
}

func (r *memoryOutcomeRepo) List(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EnrollmentRecord{}, r.records[accountID]...), nil
}

// sliceSource serves contacts from memory, mimicking the file sources.
type sliceSource struct {
	contacts []domain.Contact
	err      error
	reads    int
}

func (s *sliceSource) ReadContacts(ctx context.Context, offset int, count int) ([]domain.Contact, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	if offset >= len(s.contacts) {
		return []domain.Contact{}, nil
	}
	end := min(offset+count, len(s.contacts))
	return append([]domain.Contact{}, s.contacts[offset:end]...), nil
}

type fakeEnsurer struct {
	ensureGroupFn func(ctx context.Context, ledger *domain.ProgressLedger) (*GroupHandle, error)
	calls         int
}

func (f *fakeEnsurer) EnsureGroup(ctx context.Context, ledger *domain.ProgressLedger) (*GroupHandle, error) {
	f.calls++
	if f.ensureGroupFn != nil {
		return f.ensureGroupFn(ctx, ledger)
	}
	return &GroupHandle{Group: domain.Group{ID: "group-1@g.us", MemberCount: 3}}, nil
}

type fakeEnroller struct {
	enrollFn func(ctx context.Context, contact domain.Contact, group GroupTarget) domain.EnrollmentRecord
}

func (f *fakeEnroller) Enroll(ctx context.Context, contact domain.Contact, group GroupTarget) domain.EnrollmentRecord {
	if f.enrollFn != nil {
		return f.enrollFn(ctx, contact, group)
	}
	record := domain.NewPendingRecord(contact)
	record.Finalize(domain.EnrollmentStatusValid, domain.CodeAdded, domain.MessageAdded)
	return record
}

type fakeGroupTarget struct {
	addParticipantFn func(ctx context.Context, phone string) (gateway.AddResult, error)
	sendInviteFn     func(ctx context.Context, phone string) error
	added            []string
	invited          []string
}

func (f *fakeGroupTarget) AddParticipant(ctx context.Context, phone string) (gateway.AddResult, error) {
	f.added = append(f.added, phone)
	if f.addParticipantFn != nil {
		return f.addParticipantFn(ctx, phone)
	}
	return gateway.AddResult{Code: domain.CodeAdded}, nil
}

func (f *fakeGroupTarget) SendInvite(ctx context.Context, phone string) error {
	f.invited = append(f.invited, phone)
	if f.sendInviteFn != nil {
		return f.sendInviteFn(ctx, phone)
	}
	return nil
}

type fakeRunner struct {
	runBatchFn func(ctx context.Context) (*domain.BatchSummary, error)
	onRecord   func(domain.EnrollmentRecord)
}

func (f *fakeRunner) RunBatch(ctx context.Context) (*domain.BatchSummary, error) {
	if f.runBatchFn != nil {
		return f.runBatchFn(ctx)
	}
	return &domain.BatchSummary{}, nil
}

func (f *fakeRunner) OnRecord(fn func(domain.EnrollmentRecord)) {
	f.onRecord = fn
}

type fakeSession struct {
	startSessionFn func(ctx context.Context, webhookURL string) error
}

func (f *fakeSession) StartSession(ctx context.Context, webhookURL string) error {
	if f.startSessionFn != nil {
		return f.startSessionFn(ctx, webhookURL)
	}
	return nil
}

type fakeLocker struct {
	tryLockFn func(ctx context.Context, accountID string) (func(context.Context) error, error)
}

func (f *fakeLocker) TryLock(ctx context.Context, accountID string) (func(context.Context) error, error) {
	if f.tryLockFn != nil {
		return f.tryLockFn(ctx, accountID)
	}
	return func(context.Context) error { return nil }, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.BatchTriggerMessage) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.BatchTriggerMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, accountID string, correlationID string) error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, accountID string, correlationID string) error {
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, accountID, correlationID)
	}
	return nil
}

type fakeLister struct {
	accounts []Account
}

func (f *fakeLister) List() []Account {
	return f.accounts
}

type fakeStartChecker struct {
	canStartFn func(accountID string) error
}

func (f *fakeStartChecker) CanStart(accountID string) error {
	if f.canStartFn != nil {
		return f.canStartFn(accountID)
	}
	return nil
}

type fakeTrigger struct {
	triggerBatchFn func(ctx context.Context, accountID string) error
}

func (f *fakeTrigger) TriggerBatch(ctx context.Context, accountID string) error {
	if f.triggerBatchFn != nil {
		return f.triggerBatchFn(ctx, accountID)
	}
	return nil
}
