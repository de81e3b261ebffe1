package client

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"memetic/internal/provider"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// CheckResponse maps a finished resty call onto the provider error kinds.
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	if resp == nil {
		return fmt.Errorf("%w: empty response", provider.ErrUnavailable)
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimited, apiError(resp))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", provider.ErrNotFound, apiError(resp))
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: %w", provider.ErrUnavailable, apiError(resp))
	}
	return nil
}

func apiError(resp *resty.Response) *APIError {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return &APIError{Status: resp.StatusCode(), Body: body}
}

// NewResty returns a resty client with retries left to the provider gate.
func NewResty(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
}
