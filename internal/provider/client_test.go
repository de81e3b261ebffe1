package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
}

func (o *recordingObserver) ObserveCall(_ string, kind string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

func newTestClient(obs Observer) *Client {
	c := NewClient(Options{Name: "test", CallTimeout: 50 * time.Millisecond, Cooldown: time.Second, Observer: obs})
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestDoRetriesOnceAfterRateLimit(t *testing.T) {
	c := newTestClient(nil)
	calls := 0
	err := c.Do(context.Background(), "lookup", func(context.Context) error {
		calls++
		if calls == 1 {
			return ErrRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoSurfacesSecondRateLimit(t *testing.T) {
	c := newTestClient(nil)
	calls := 0
	err := c.Do(context.Background(), "lookup", func(context.Context) error {
		calls++
		return ErrRateLimited
	})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, calls)
}

func TestDoTimesOutSlowCalls(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestClient(obs)
	err := c.Do(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []string{"unavailable"}, obs.kinds)
}

func TestDoWrapsUnknownErrorsAsUnavailable(t *testing.T) {
	c := newTestClient(nil)
	err := c.Do(context.Background(), "parse", func(context.Context) error {
		return errors.New("unexpected token")
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := newTestClient(nil)
	calls := 0
	failing := func(context.Context) error {
		calls++
		return ErrUnavailable
	}
	for i := 0; i < 3; i++ {
		_ = c.Do(context.Background(), "down", failing)
	}
	err := c.Do(context.Background(), "down", failing)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls, "open breaker must not reach the provider")
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	c := newTestClient(nil)
	for i := 0; i < 5; i++ {
		err := c.Do(context.Background(), "missing", func(context.Context) error { return ErrNotFound })
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.NoError(t, c.Do(context.Background(), "ok", func(context.Context) error { return nil }))
}
