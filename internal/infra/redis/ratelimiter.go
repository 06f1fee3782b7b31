package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/group-enroller/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimit  int64 = 20
	defaultWindow       = time.Minute
	keyPrefix           = "enroller:gateway-budget:"
)

// reserveScript keeps one sorted set per key holding the timestamps (ms) of
// calls inside the sliding window. It returns 0 when the call was admitted,
// otherwise the milliseconds until the oldest call leaves the window.
var reserveScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return tonumber(oldest[2]) + window - now
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a sliding-window call budget shared by every process
// talking to the same gateway session.
type RedisRateLimiter struct {
	client goredis.UniversalClient
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	nextID func() string
}

func NewRedisRateLimiter(client goredis.UniversalClient, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limit), window, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client goredis.UniversalClient,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if window < time.Second {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
		nextID: uuid.NewString,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	retryIn, err := r.reserve(ctx, key)
	if err != nil {
		return false, err
	}
	return retryIn == 0, nil
}

// Wait blocks until key has budget for one more call and consumes it.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	for {
		retryIn, err := r.reserve(ctx, key)
		if err != nil {
			return err
		}
		if retryIn == 0 {
			return nil
		}
		if err := r.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) reserve(ctx context.Context, key string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return 0, fmt.Errorf("rate limit key is required")
	}

	nowMs := r.now().UTC().UnixMilli()
	retryMs, err := reserveScript.Run(
		ctx,
		r.client,
		[]string{keyPrefix + normalizedKey},
		nowMs,
		r.window.Milliseconds(),
		r.limit,
		fmt.Sprintf("%d-%s", nowMs, r.nextID()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate gateway budget for %q: %w", normalizedKey, err)
	}
	if retryMs <= 0 {
		return 0, nil
	}
	return time.Duration(retryMs) * time.Millisecond, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
