package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/group-enroller/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 2 * time.Hour
	lockKeyPrefix  = "enroller:batch-lock:"
)

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// BatchLock keeps two processes from running a batch for the same account.
// Each acquisition stores a random token so only the holder can release it.
type BatchLock struct {
	client goredis.UniversalClient
	ttl    time.Duration
	token  func() string
}

func NewBatchLock(client goredis.UniversalClient, ttl time.Duration) (*BatchLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &BatchLock{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString,
	}, nil
}

// TryLock returns domain.ErrBatchInProgress when another holder owns the
// account. The returned func releases the lock.
func (l *BatchLock) TryLock(ctx context.Context, accountID string) (func(context.Context) error, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}

	key := lockKeyPrefix + accountID
	token := l.token()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire batch lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock for account %s is held", domain.ErrBatchInProgress, accountID)
	}

	unlock := func(ctx context.Context) error {
		result, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release batch lock: %w", err)
		}
		if result == 0 {
			return fmt.Errorf("batch lock for account %s expired before release", accountID)
		}
		return nil
	}
	return unlock, nil
}
