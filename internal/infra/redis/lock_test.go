package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

func TestBatchLockExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	lock, err := NewBatchLock(newTestRedisClient(t), time.Minute)
	if err != nil {
		t.Fatalf("NewBatchLock() error = %v", err)
	}

	ctx := context.Background()
	unlock, err := lock.TryLock(ctx, "main")
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}

	if _, err := lock.TryLock(ctx, "main"); !errors.Is(err, domain.ErrBatchInProgress) {
		t.Fatalf("second TryLock() error = %v, want ErrBatchInProgress", err)
	}

	otherUnlock, err := lock.TryLock(ctx, "backup")
	if err != nil {
		t.Fatalf("TryLock(backup) error = %v", err)
	}
	if err := otherUnlock(ctx); err != nil {
		t.Fatalf("unlock(backup) error = %v", err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock() error = %v", err)
	}

	again, err := lock.TryLock(ctx, "main")
	if err != nil {
		t.Fatalf("TryLock() after unlock error = %v", err)
	}
	_ = again(ctx)
}

func TestBatchLockUnlockAfterTakeoverFails(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	lock, err := NewBatchLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewBatchLock() error = %v", err)
	}

	ctx := context.Background()
	unlock, err := lock.TryLock(ctx, "main")
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}

	// simulate expiry followed by another holder
	if err := rdb.Set(ctx, lockKeyPrefix+"main", "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := unlock(ctx); err == nil {
		t.Fatal("unlock() should fail when the token no longer matches")
	}
	if got := rdb.Get(ctx, lockKeyPrefix+"main").Val(); got != "someone-else" {
		t.Fatalf("lock value = %q, foreign lock must survive", got)
	}
}
