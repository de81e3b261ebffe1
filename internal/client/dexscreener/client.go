package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"memetic/internal/client"
	"memetic/internal/provider"
)

const DefaultBaseURL = "https://api.dexscreener.com"

type Client struct {
	http *resty.Client
	gate *provider.Client
}

func NewClient(baseURL string, gate *provider.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: client.NewResty(strings.TrimRight(baseURL, "/")),
		gate: gate,
	}
}

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Liquidity struct {
	USD   json.Number `json:"usd"`
	Base  json.Number `json:"base"`
	Quote json.Number `json:"quote"`
}

type Info struct {
	ImageURL string `json:"imageUrl"`
	Header   string `json:"header"`
}

type Pair struct {
	ChainID     string                 `json:"chainId"`
	DexID       string                 `json:"dexId"`
	URL         string                 `json:"url"`
	PairAddress string                 `json:"pairAddress"`
	BaseToken   Token                  `json:"baseToken"`
	QuoteToken  Token                  `json:"quoteToken"`
	PriceNative string                 `json:"priceNative"`
	PriceUSD    string                 `json:"priceUsd"`
	Liquidity   *Liquidity             `json:"liquidity"`
	FDV         json.Number            `json:"fdv"`
	MarketCap   json.Number            `json:"marketCap"`
	PriceChange map[string]json.Number `json:"priceChange"`
	PairCreated int64                  `json:"pairCreatedAt"`
	Info        *Info                  `json:"info"`
}

// LiquidityUSD returns the pair's USD liquidity, zero when unknown.
func (p Pair) LiquidityUSD() decimal.Decimal {
	if p.Liquidity == nil {
		return decimal.Zero
	}
	return parseNumber(string(p.Liquidity.USD))
}

func (p Pair) Price() decimal.Decimal {
	return parseNumber(p.PriceUSD)
}

// MarketCapUSD prefers marketCap and falls back to fdv.
func (p Pair) MarketCapUSD() decimal.Decimal {
	if mc := parseNumber(string(p.MarketCap)); mc.IsPositive() {
		return mc
	}
	return parseNumber(string(p.FDV))
}

func (p Pair) ImageURL() string {
	if p.Info == nil {
		return ""
	}
	return p.Info.ImageURL
}

func (c *Client) Name() string {
	return "dexscreener"
}

// TokenPairs lists the pairs of a token on chain (e.g. "base").
func (c *Client) TokenPairs(ctx context.Context, chain, address string) ([]Pair, error) {
	chain = strings.TrimSpace(chain)
	address = strings.ToLower(strings.TrimSpace(address))
	if chain == "" || address == "" {
		return nil, fmt.Errorf("chain and address are required")
	}
	var out []Pair
	err := c.gate.Do(ctx, "token_pairs", func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetPathParams(map[string]string{"chain": chain, "address": address}).
			Get("/tokens/v1/{chain}/{address}")
		return client.CheckResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no pairs for %s", provider.ErrNotFound, address)
	}
	return out, nil
}

// BestPair returns the pair with the highest USD liquidity.
func BestPair(pairs []Pair) (Pair, bool) {
	if len(pairs) == 0 {
		return Pair{}, false
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.LiquidityUSD().GreaterThan(best.LiquidityUSD()) {
			best = p
		}
	}
	return best, true
}

func parseNumber(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
