package ratelimit

import "context"

// RateLimiter paces calls sharing the same key, typically one account's
// gateway session.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
