package httputil

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outbound requests: at most burst acquisitions per period,
// evenly spaced once the burst allowance is used up. The zero value is not
// usable; construct with [NewLimiter].
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration // spacing between acquisitions at steady state
	slack    time.Duration // how far behind schedule an idle limiter may fall
	next     time.Time     // earliest time of the next acquisition
}

// NewLimiter creates a limiter allowing burst acquisitions per period.
func NewLimiter(burst int, period time.Duration) *Limiter {
	burst = max(burst, 1)
	interval := period / time.Duration(burst)
	return &Limiter{
		interval: interval,
		slack:    period - interval,
	}
}

// Wait blocks until the caller may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	floor := now.Add(-l.slack)
	if l.next.Before(floor) {
		l.next = floor
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
