package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newFakeLimiter(interval time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1735689600, 0)}
	l := NewLimiter(interval)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestLimiterSpacesConsecutiveGrants(t *testing.T) {
	const interval = 1200 * time.Millisecond
	l, _ := newFakeLimiter(interval)

	var grants []time.Time
	for i := 0; i < 5; i++ {
		at, err := l.Wait(context.Background())
		if err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
		grants = append(grants, at)
	}
	for i := 1; i < len(grants); i++ {
		if gap := grants[i].Sub(grants[i-1]); gap < interval {
			t.Fatalf("grant %d only %v after previous, want >= %v", i, gap, interval)
		}
	}
}

func TestLimiterConcurrentCallersStaySpaced(t *testing.T) {
	const interval = 15 * time.Millisecond
	l := NewLimiter(interval)

	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at, err := l.Wait(context.Background())
			if err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, at)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	for i := 1; i < len(grants); i++ {
		if gap := grants[i].Sub(grants[i-1]); gap < interval {
			t.Fatalf("grant %d only %v after previous, want >= %v", i, gap, interval)
		}
	}
}

func TestLimiterCancelledWaitReturnsContextError(t *testing.T) {
	l := NewLimiter(time.Hour)
	if _, err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLimiterCancelDoesNotWaitBehindSleepingCaller(t *testing.T) {
	const interval = time.Minute
	l, _ := newFakeLimiter(interval)
	wake := make(chan struct{})
	sleeping := make(chan struct{}, 4)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeping <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			return nil
		}
	}

	first, err := l.Wait(context.Background())
	if err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	type grant struct {
		at  time.Time
		err error
	}
	slow := make(chan grant, 1)
	go func() {
		at, err := l.Wait(context.Background())
		slow <- grant{at, err}
	}()
	<-sleeping

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := l.Wait(cancelled)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled Wait blocked behind a sleeping caller")
	}

	ctx, cancelLater := context.WithCancel(context.Background())
	go func() {
		_, err := l.Wait(ctx)
		done <- err
	}()
	<-sleeping
	cancelLater()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait ignored cancellation while sleeping")
	}

	close(wake)
	got := <-slow
	if got.err != nil {
		t.Fatalf("sleeping Wait: %v", got.err)
	}
	if gap := got.at.Sub(first); gap < interval {
		t.Fatalf("second grant only %v after first, want >= %v", gap, interval)
	}

	next, err := l.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait after cancel: %v", err)
	}
	if gap := next.Sub(got.at); gap < interval {
		t.Fatalf("grant after cancel only %v after previous, want >= %v", gap, interval)
	}
}

func TestLimiterZeroIntervalNeverBlocks(t *testing.T) {
	l := NewLimiter(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if _, err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("unbounded limiter blocked")
	}
}
