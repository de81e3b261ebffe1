package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Images struct {
	Thumb string `json:"thumb,omitempty"`
	Small string `json:"small,omitempty"`
	Large string `json:"large,omitempty"`
}

// TokenInfo is provider metadata normalized across sources.
type TokenInfo struct {
	Address     string   `json:"address"`
	Source      string   `json:"source"`
	ProviderID  string   `json:"provider_id,omitempty"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    int      `json:"decimals"`
	Categories  []string `json:"categories,omitempty"`
	Description string   `json:"description,omitempty"`
	Images      Images   `json:"images"`
}

// Quote is a market observation close to a requested time.
type Quote struct {
	At        time.Time       `json:"at"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

// Point is one element of a provider time series.
type Point struct {
	At        time.Time
	Price     decimal.Decimal
	MarketCap decimal.Decimal
}

// Source is one market-data provider in the fallback chain.
type Source interface {
	Name() string
	Metadata(ctx context.Context, address string) (*TokenInfo, error)
	MarketCapAt(ctx context.Context, info *TokenInfo, at time.Time) (Quote, error)
}

// Attempt is the diagnostic record of one provider step.
type Attempt struct {
	Source string `json:"source"`
	Op     string `json:"op"`
	OK     bool   `json:"ok"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
	TookMs int64  `json:"took_ms"`
	Cached bool   `json:"cached,omitempty"`
}

type Result struct {
	AttemptID string    `json:"attempt_id"`
	Token     TokenInfo `json:"token"`
	Quote     Quote     `json:"quote"`
	// MarketCap is the integer (floored) market cap stored on the signal.
	MarketCap       decimal.Decimal `json:"market_cap"`
	Source          string          `json:"source"`
	ResolutionError bool            `json:"resolution_error"`
	Attempts        []Attempt       `json:"attempts"`
}
