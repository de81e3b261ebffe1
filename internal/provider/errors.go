package provider

import "errors"

var (
	// ErrRateLimited means the provider throttled us even after the cooldown retry. Retryable.
	ErrRateLimited = errors.New("provider: rate limited")
	// ErrUnavailable covers network, timeout, HTTP and parse failures, and an open breaker.
	ErrUnavailable = errors.New("provider: unavailable")
	// ErrNotFound means the provider answered but has no data for the token.
	ErrNotFound = errors.New("provider: not found")
)

// Kind returns a short label for err, used in diagnostics and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
