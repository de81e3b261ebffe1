package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between dispatches to one provider.
// Slots are reserved under the mutex in call order and slept on outside it,
// so a caller waiting for its slot never blocks another caller's cancel.
type Limiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewLimiter(minInterval time.Duration) *Limiter {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{
		limiter:  lim,
		interval: minInterval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (l *Limiter) MinInterval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until the caller may dispatch and returns the granted time.
func (l *Limiter) Wait(ctx context.Context) (time.Time, error) {
	if l == nil {
		return time.Now(), nil
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	l.mu.Lock()
	now := l.now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		l.mu.Unlock()
		return time.Time{}, ErrRateLimited
	}
	delay := r.DelayFrom(now)
	if !l.last.IsZero() {
		if floor := l.last.Add(l.interval).Sub(now); floor > delay {
			delay = floor
		}
	}
	prev := l.last
	grant := now.Add(delay)
	l.last = grant
	l.mu.Unlock()

	if delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			l.release(r, prev, grant)
			return time.Time{}, err
		}
	}
	return grant, nil
}

// release hands back an unused slot. Only the newest slot is rolled back;
// an older one leaves a gap so later grants keep their spacing.
func (l *Limiter) release(r *rate.Reservation, prev, grant time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last.Equal(grant) {
		l.last = prev
		r.CancelAt(l.now())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
