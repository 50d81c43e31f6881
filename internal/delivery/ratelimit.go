package delivery

import (
	"context"
	"sync"
	"time"
)

// Limiter gates each send attempt. Wait blocks until the global send-rate
// ceilings allow one more message, or the context is cancelled.
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowLimiter enforces three independent ceilings: messages per rolling
// minute, messages per rolling hour, and a fixed inter-message delay.
// Windows reset lazily on wall-clock boundaries, checked on each call.
// Counters are process-local; with multiple worker processes each enforces
// its own budget (use RedisLimiter for a shared one).
type WindowLimiter struct {
	mu           sync.Mutex
	maxPerMinute int
	maxPerHour   int
	delay        time.Duration

	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
	lastSend    time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWindowLimiter(maxPerMinute, maxPerHour int, delay time.Duration) *WindowLimiter {
	return &WindowLimiter{
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		delay:        delay,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Wait holds the limiter's lock while blocking, so concurrent delivery
// goroutines drain the shared budget one at a time.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.now()

		if minuteStart := now.Truncate(time.Minute); minuteStart.After(l.minuteStart) {
			l.minuteStart = minuteStart
			l.minuteCount = 0
		}
		if hourStart := now.Truncate(time.Hour); hourStart.After(l.hourStart) {
			l.hourStart = hourStart
			l.hourCount = 0
		}

		var wait time.Duration
		if l.delay > 0 && !l.lastSend.IsZero() {
			if d := l.delay - now.Sub(l.lastSend); d > wait {
				wait = d
			}
		}
		if l.maxPerMinute > 0 && l.minuteCount >= l.maxPerMinute {
			if d := l.minuteStart.Add(time.Minute).Sub(now); d > wait {
				wait = d
			}
		}
		if l.maxPerHour > 0 && l.hourCount >= l.maxPerHour {
			if d := l.hourStart.Add(time.Hour).Sub(now); d > wait {
				wait = d
			}
		}

		if wait <= 0 {
			l.minuteCount++
			l.hourCount++
			l.lastSend = now
			return nil
		}

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Limiter = (*WindowLimiter)(nil)
