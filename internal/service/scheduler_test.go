package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"go.uber.org/zap"
)

func TestNewSchedulerAppliesDefaults(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler(&fakeLister{}, &fakeDispatcher{}, 0, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if scheduler.interval != defaultSchedulerInterval {
		t.Fatalf("interval = %s, want %s", scheduler.interval, defaultSchedulerInterval)
	}

	if _, err := NewScheduler(nil, &fakeDispatcher{}, time.Minute, nil); err == nil {
		t.Fatal("expected error without account lister")
	}
}

func TestSchedulerCycleDispatchesReadyAccounts(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{accounts: []Account{
		{ID: "acc-1", Status: domain.AccountStatusReady},
		{ID: "acc-2", Status: domain.AccountStatusRunning},
		{ID: "acc-3", Status: domain.AccountStatusAwaitingPairing},
		{ID: "acc-4", Status: domain.AccountStatusReady},
	}}

	dispatched := make(map[string]string)
	dispatcher := &fakeDispatcher{
		dispatchFn: func(ctx context.Context, accountID string, correlationID string) error {
			dispatched[accountID] = correlationID
			return nil
		},
	}

	scheduler, err := NewScheduler(lister, dispatcher, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.newCorrelationID = func() string { return "corr-fixed" }

	if got := scheduler.cycle(context.Background()); got != 2 {
		t.Fatalf("cycle() = %d, want 2", got)
	}
	if len(dispatched) != 2 || dispatched["acc-1"] != "corr-fixed" || dispatched["acc-4"] != "corr-fixed" {
		t.Fatalf("dispatched = %v, want acc-1 and acc-4", dispatched)
	}
}

func TestSchedulerCycleContinuesOnDispatchError(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{accounts: []Account{
		{ID: "acc-1", Status: domain.AccountStatusReady},
		{ID: "acc-2", Status: domain.AccountStatusReady},
		{ID: "acc-3", Status: domain.AccountStatusReady},
	}}

	calls := 0
	dispatcher := &fakeDispatcher{
		dispatchFn: func(ctx context.Context, accountID string, correlationID string) error {
			calls++
			switch accountID {
			case "acc-1":
				return errors.New("broker down")
			case "acc-2":
				return domain.ErrBatchInProgress
			}
			return nil
		},
	}

	scheduler, err := NewScheduler(lister, dispatcher, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if got := scheduler.cycle(context.Background()); got != 1 {
		t.Fatalf("cycle() = %d, want 1", got)
	}
	if calls != 3 {
		t.Fatalf("dispatch calls = %d, want 3", calls)
	}
}

func TestSchedulerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scheduler, err := NewScheduler(&fakeLister{}, &fakeDispatcher{}, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
