package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"memetic/internal/client"
	"memetic/internal/provider"
)

const DefaultBaseURL = "https://pro-api.coingecko.com/api/v3"

// Client talks to the CoinGecko Pro API through a rate-limited gate.
type Client struct {
	http   *resty.Client
	gate   *provider.Client
	apiKey string
}

func NewClient(baseURL, apiKey string, gate *provider.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:   client.NewResty(strings.TrimRight(baseURL, "/")),
		gate:   gate,
		apiKey: apiKey,
	}
}

type Coin struct {
	ID              string                    `json:"id"`
	Symbol          string                    `json:"symbol"`
	Name            string                    `json:"name"`
	Categories      []string                  `json:"categories"`
	Description     map[string]string         `json:"description"`
	Image           Image                     `json:"image"`
	DetailPlatforms map[string]PlatformDetail `json:"detail_platforms"`
	MarketData      *MarketData               `json:"market_data"`
}

type Image struct {
	Thumb string `json:"thumb"`
	Small string `json:"small"`
	Large string `json:"large"`
}

type PlatformDetail struct {
	DecimalPlace    *int   `json:"decimal_place"`
	ContractAddress string `json:"contract_address"`
}

type MarketData struct {
	CurrentPrice map[string]json.Number `json:"current_price"`
	MarketCap    map[string]json.Number `json:"market_cap"`
}

// MarketChart holds [unix_ms, value] pairs.
type MarketChart struct {
	Prices     [][]json.Number `json:"prices"`
	MarketCaps [][]json.Number `json:"market_caps"`
}

func (c *Client) Name() string {
	return "coingecko"
}

// CoinByContract resolves a token contract on platform (e.g. "base") to its coin record.
func (c *Client) CoinByContract(ctx context.Context, platform, address string) (*Coin, error) {
	platform = strings.TrimSpace(platform)
	address = strings.ToLower(strings.TrimSpace(address))
	if platform == "" || address == "" {
		return nil, fmt.Errorf("platform and address are required")
	}
	var out Coin
	err := c.gate.Do(ctx, "coin_by_contract", func(ctx context.Context) error {
		resp, err := c.request(ctx).
			SetResult(&out).
			SetPathParams(map[string]string{"platform": platform, "address": address}).
			Get("/coins/{platform}/contract/{address}")
		return client.CheckResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: empty coin id for %s", provider.ErrNotFound, address)
	}
	return &out, nil
}

// MarketChartRange returns the USD price and market cap series between from and to (unix seconds).
func (c *Client) MarketChartRange(ctx context.Context, coinID string, from, to int64) (*MarketChart, error) {
	if strings.TrimSpace(coinID) == "" {
		return nil, fmt.Errorf("coin id is required")
	}
	var out MarketChart
	err := c.gate.Do(ctx, "market_chart_range", func(ctx context.Context) error {
		resp, err := c.request(ctx).
			SetResult(&out).
			SetPathParam("id", coinID).
			SetQueryParams(map[string]string{
				"vs_currency": "usd",
				"from":        strconv.FormatInt(from, 10),
				"to":          strconv.FormatInt(to, 10),
			}).
			Get("/coins/{id}/market_chart/range")
		return client.CheckResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader("x-cg-pro-api-key", c.apiKey)
	}
	return req
}

// Decimals returns the token decimals on platform, defaulting to 18.
func (coin *Coin) Decimals(platform string) int {
	if coin == nil {
		return 18
	}
	if d, ok := coin.DetailPlatforms[platform]; ok && d.DecimalPlace != nil {
		return *d.DecimalPlace
	}
	return 18
}
