package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/ratelimit"
)

// CallObserver receives the wall time of every gateway call.
type CallObserver interface {
	ObserveGatewayCall(operation string, duration time.Duration)
}

var _ Gateway = (*Throttled)(nil)

// Throttled wraps a Gateway with a shared call budget and call timing. The
// budget key is usually the account id so each session is paced on its own.
type Throttled struct {
	next     Gateway
	limiter  ratelimit.RateLimiter
	key      string
	observer CallObserver
	now      func() time.Time
}

func NewThrottled(next Gateway, limiter ratelimit.RateLimiter, key string, observer CallObserver) (*Throttled, error) {
	if next == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if limiter != nil && key == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	return &Throttled{
		next:     next,
		limiter:  limiter,
		key:      key,
		observer: observer,
		now:      time.Now,
	}, nil
}

func (t *Throttled) ResolveIdentity(ctx context.Context, phone string) (string, bool, error) {
	var (
		identity string
		found    bool
	)
	err := t.call(ctx, OpResolveIdentity, func() error {
		var err error
		identity, found, err = t.next.ResolveIdentity(ctx, phone)
		return err
	})
	return identity, found, err
}

func (t *Throttled) AddParticipants(ctx context.Context, groupID string, phones []string, opts AddOptions) (map[string]AddResult, error) {
	var results map[string]AddResult
	err := t.call(ctx, OpAddParticipants, func() error {
		var err error
		results, err = t.next.AddParticipants(ctx, groupID, phones, opts)
		return err
	})
	return results, err
}

func (t *Throttled) SendInvite(ctx context.Context, groupID string, phone string) error {
	return t.call(ctx, OpSendInvite, func() error {
		return t.next.SendInvite(ctx, groupID, phone)
	})
}

func (t *Throttled) CreateGroup(ctx context.Context, name string, participants []string) (string, error) {
	var groupID string
	err := t.call(ctx, OpCreateGroup, func() error {
		var err error
		groupID, err = t.next.CreateGroup(ctx, name, participants)
		return err
	})
	return groupID, err
}

func (t *Throttled) Promote(ctx context.Context, groupID string, phones []string) error {
	return t.call(ctx, OpPromote, func() error {
		return t.next.Promote(ctx, groupID, phones)
	})
}

func (t *Throttled) RestrictPosting(ctx context.Context, groupID string, adminsOnly bool) error {
	return t.call(ctx, OpRestrictPosting, func() error {
		return t.next.RestrictPosting(ctx, groupID, adminsOnly)
	})
}

func (t *Throttled) RestrictInfoEdit(ctx context.Context, groupID string, adminsOnly bool) error {
	return t.call(ctx, OpRestrictInfoEdit, func() error {
		return t.next.RestrictInfoEdit(ctx, groupID, adminsOnly)
	})
}

func (t *Throttled) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	var group *domain.Group
	err := t.call(ctx, OpGetGroup, func() error {
		var err error
		group, err = t.next.GetGroup(ctx, groupID)
		return err
	})
	return group, err
}

func (t *Throttled) call(ctx context.Context, op string, fn func() error) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, t.key); err != nil {
			return &GatewayError{Op: op, Message: "rate limiter wait failed", Transient: true, Cause: err}
		}
	}

	start := t.now()
	err := fn()
	if t.observer != nil {
		t.observer.ObserveGatewayCall(op, t.now().Sub(start))
	}
	return err
}
