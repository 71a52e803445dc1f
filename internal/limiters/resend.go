package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResendUnavailable indicates the resend limiter backend is
	// unreachable.
	ErrResendUnavailable = errors.New("resend limiter unavailable")
)

// ResendLimiter enforces the minimum interval between code deliveries for
// the same account, the initial delivery included. The delivery channel is a
// paid external service; the interval is the abuse brake.
type ResendLimiter struct {
	redis    redis.UniversalClient
	interval time.Duration
}

func NewResendLimiter(redisClient redis.UniversalClient, interval time.Duration) *ResendLimiter {
	return &ResendLimiter{redis: redisClient, interval: interval}
}

func (l *ResendLimiter) key(accountID string) string {
	return "slr:" + accountID
}

// Reserve claims a delivery slot for the account. When the interval has not
// elapsed it returns ok=false with the remaining cooldown.
func (l *ResendLimiter) Reserve(ctx context.Context, accountID string) (retryAfter time.Duration, ok bool, err error) {
	if l.interval <= 0 || accountID == "" {
		return 0, true, nil
	}

	set, err := l.redis.SetNX(ctx, l.key(accountID), 1, l.interval).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrResendUnavailable, err)
	}
	if set {
		return 0, true, nil
	}

	ttl, err := l.redis.PTTL(ctx, l.key(accountID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrResendUnavailable, err)
	}
	if ttl < 0 {
		ttl = l.interval
	}
	return ttl, false, nil
}

// Release frees a reserved slot when the delivery it covered never went out,
// so a channel outage does not also cost the caller the resend cooldown.
func (l *ResendLimiter) Release(ctx context.Context, accountID string) error {
	if l.interval <= 0 || accountID == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResendUnavailable, err)
	}
	return nil
}
