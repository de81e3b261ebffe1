package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type apiClient struct {
	http *resty.Client
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

func newAPIClient(opts *options) *apiClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.server, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if opts.apiKey != "" {
		c.SetHeader("X-API-Key", opts.apiKey)
	}
	return &apiClient{http: c}
}

// call performs the request and returns the whole response body. Non-2xx
// statuses become errors carrying the server message.
func (c *apiClient) call(ctx context.Context, method, path string, query map[string]string, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		var env envelope
		if json.Unmarshal(resp.Body(), &env) == nil && env.Message != "" {
			return resp.Body(), fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), env.Message)
		}
		return resp.Body(), fmt.Errorf("%s %s: %d", method, path, resp.StatusCode())
	}
	return resp.Body(), nil
}
