package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares the per-minute and per-hour budgets across worker
// processes through atomic Redis counters keyed by wall-clock window. The
// fixed inter-message delay stays process-local: it spaces one consumer's
// sends, not the fleet's.
type RedisLimiter struct {
	client       *redis.Client
	maxPerMinute int
	maxPerHour   int
	delay        time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

func NewRedisLimiter(client *redis.Client, maxPerMinute, maxPerHour int, delay time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:       client,
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		delay:        delay,
	}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	if err := l.waitDelay(ctx); err != nil {
		return err
	}

	for {
		now := time.Now()

		ok, retryIn, err := l.tryWindow(ctx, "minute", now.Unix()/60, l.maxPerMinute,
			now.Truncate(time.Minute).Add(time.Minute).Sub(now), 2*time.Minute)
		if err != nil {
			return err
		}
		if !ok {
			if err := sleepContext(ctx, retryIn); err != nil {
				return err
			}
			continue
		}

		ok, retryIn, err = l.tryWindow(ctx, "hour", now.Unix()/3600, l.maxPerHour,
			now.Truncate(time.Hour).Add(time.Hour).Sub(now), 2*time.Hour)
		if err != nil {
			return err
		}
		if !ok {
			if err := sleepContext(ctx, retryIn); err != nil {
				return err
			}
			continue
		}

		return nil
	}
}

// tryWindow consumes one slot from the window's shared counter. When the
// window is full it reports how long until the next wall-clock boundary.
func (l *RedisLimiter) tryWindow(ctx context.Context, name string, slot int64, max int, untilReset, ttl time.Duration) (bool, time.Duration, error) {
	if max <= 0 {
		return true, 0, nil
	}

	key := fmt.Sprintf("campaign:ratelimit:%s:%d", name, slot)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limiter incr: %w", err)
	}
	// Counters expire shortly after their window so stale slots do not
	// accumulate.
	l.client.Expire(ctx, key, ttl)

	if count > int64(max) {
		return false, untilReset, nil
	}
	return true, 0, nil
}

func (l *RedisLimiter) waitDelay(ctx context.Context) error {
	if l.delay <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastSend.IsZero() {
		if d := l.delay - time.Since(l.lastSend); d > 0 {
			if err := sleepContext(ctx, d); err != nil {
				return err
			}
		}
	}
	l.lastSend = time.Now()
	return nil
}

var _ Limiter = (*RedisLimiter)(nil)
