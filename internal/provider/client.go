package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultCallTimeout = 15 * time.Second
	DefaultCooldown    = 5 * time.Second
)

// Observer receives one callback per finished provider call.
type Observer interface {
	ObserveCall(provider string, kind string, took time.Duration)
}

type Options struct {
	Name        string
	MinInterval time.Duration
	CallTimeout time.Duration
	Cooldown    time.Duration
	Logger      *zap.Logger
	Observer    Observer
}

// Client gates every request to one upstream provider: spacing, timeout,
// a single cooldown retry on throttling, and a circuit breaker.
type Client struct {
	name        string
	limiter     *Limiter
	breaker     *gobreaker.CircuitBreaker
	callTimeout time.Duration
	cooldown    time.Duration
	logger      *zap.Logger
	observer    Observer
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	st := gobreaker.Settings{
		Name:     opts.Name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	}
	logger := opts.Logger.With(zap.String("provider", opts.Name))
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("provider breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return &Client{
		name:        opts.Name,
		limiter:     NewLimiter(opts.MinInterval),
		breaker:     gobreaker.NewCircuitBreaker(st),
		callTimeout: opts.CallTimeout,
		cooldown:    opts.Cooldown,
		logger:      logger,
		observer:    opts.Observer,
		sleep:       sleepCtx,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Do runs fn once the limiter grants a slot. A rate-limited answer is
// retried exactly once after the cooldown; anything else is returned as is,
// normalized onto ErrRateLimited, ErrUnavailable or ErrNotFound.
func (c *Client) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := c.attempt(ctx, fn)
	if errors.Is(err, ErrRateLimited) {
		c.logger.Warn("provider rate limited, cooling down", zap.String("op", op), zap.Duration("cooldown", c.cooldown))
		if serr := c.sleep(ctx, c.cooldown); serr != nil {
			err = fmt.Errorf("%w: %v", ErrUnavailable, serr)
		} else {
			err = c.attempt(ctx, fn)
		}
	}
	if c.observer != nil {
		c.observer.ObserveCall(c.name, Kind(err), time.Since(start))
	}
	if err != nil {
		c.logger.Debug("provider call failed", zap.String("op", op), zap.String("kind", Kind(err)), zap.Error(err))
	}
	return err
}

func (c *Client) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, err := c.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		return nil, normalize(fn(callCtx))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
