package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds the failed-password counting policy.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration // 0 = count until explicit reset
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutLimiter tracks failed password attempts per account and decides the
// lock transition. The counter is a Redis INCR, so concurrent failures for
// the same account serialize in Redis and the count can never lose an update.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) key(accountID string) string {
	return "slf:" + accountID
}

// RecordFailure increments the failure counter and reports the new count.
// shouldLock is true for every call at or past the threshold: the lock call
// is idempotent, so re-reporting is safe, and it means a failed lock write at
// the threshold gets retried by the next failure instead of being lost.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, accountID string) (count int, shouldLock bool, err error) {
	if accountID == "" {
		return 0, false, nil
	}

	n, err := l.redis.Incr(ctx, l.key(accountID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if n == 1 && l.config.Window > 0 {
		// TTL on first failure gives a rolling counting window.
		if err := l.redis.Expire(ctx, l.key(accountID), l.config.Window).Err(); err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	return int(n), n >= int64(l.config.Threshold), nil
}

// Reset clears the failure counter after a successful password step or an
// administrative unlock.
func (l *LockoutLimiter) Reset(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current counter value. Missing keys read as zero.
func (l *LockoutLimiter) FailureCount(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
