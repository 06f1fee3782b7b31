package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterAllowWithinWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_040, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 2, time.Minute, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "main")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	now = now.Add(10 * time.Second)
	allowed, err := limiter.Allow(context.Background(), "main")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call inside the window should be rejected")
	}

	now = now.Add(time.Minute)
	allowed, err = limiter.Allow(context.Background(), "main")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("call after the window should be allowed")
	}
}

func TestRedisRateLimiterWindowSlides(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_059, 0)
	now := start
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, time.Minute, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if allowed, _ := limiter.Allow(context.Background(), "main"); !allowed {
		t.Fatal("first call should be allowed")
	}

	// A fixed window would reset at the minute boundary, two seconds later.
	now = start.Add(2 * time.Second)
	if allowed, _ := limiter.Allow(context.Background(), "main"); allowed {
		t.Fatal("call across a minute boundary should still be rejected")
	}

	now = start.Add(59 * time.Second)
	if allowed, _ := limiter.Allow(context.Background(), "main"); allowed {
		t.Fatal("call before the first one leaves the window should be rejected")
	}

	now = start.Add(time.Minute)
	if allowed, _ := limiter.Allow(context.Background(), "main"); !allowed {
		t.Fatal("call once the first one left the window should be allowed")
	}
}

func TestRedisRateLimiterAllowPerKey(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, time.Minute, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "main")
	if err != nil {
		t.Fatalf("Allow(main) error = %v", err)
	}
	if !allowed {
		t.Fatal("main should be allowed on first request")
	}

	allowed, err = limiter.Allow(context.Background(), "backup")
	if err != nil {
		t.Fatalf("Allow(backup) error = %v", err)
	}
	if !allowed {
		t.Fatal("backup should be allowed on first request")
	}

	allowed, err = limiter.Allow(context.Background(), "MAIN")
	if err != nil {
		t.Fatalf("Allow(MAIN) error = %v", err)
	}
	if allowed {
		t.Fatal("keys are case-insensitive; second main request should be rejected")
	}
}

func TestRedisRateLimiterAllowRequiresKey(t *testing.T) {
	t.Parallel()

	limiter, err := NewRedisRateLimiter(newTestRedisClient(t), 1, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestRedisRateLimiterWaitSleepsUntilBudgetFrees(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_200, 0)
	now := start
	var slept []time.Duration
	limiter, err := newRedisRateLimiter(
		newTestRedisClient(t),
		1,
		time.Minute,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "main"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first Wait() slept %v, want no sleep", slept)
	}

	now = start.Add(20 * time.Second)
	if err := limiter.Wait(context.Background(), "main"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 40*time.Second {
		t.Fatalf("slept = %v, want [40s]", slept)
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, time.Minute, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "main")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected first call to be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "main")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return rdb
}
