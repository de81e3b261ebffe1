package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"memetic/internal/client/dexscreener"
	"memetic/internal/provider"
)

type DexScreenerAPI interface {
	TokenPairs(ctx context.Context, chain, address string) ([]dexscreener.Pair, error)
}

// HistoricalPricer estimates a pair's USD price at a past instant.
type HistoricalPricer interface {
	HistoricalPrice(pair dexscreener.Pair, now, at time.Time) (decimal.Decimal, error)
}

// DexScreenerSource has no historical series, so the market cap at a past
// time is projected from the current market cap by the price ratio:
// floor(current_mc / current_price * historical_price).
type DexScreenerSource struct {
	API    DexScreenerAPI
	Chain  string
	Pricer HistoricalPricer
	Now    func() time.Time
}

func (s *DexScreenerSource) Name() string {
	return "dexscreener"
}

func (s *DexScreenerSource) Metadata(ctx context.Context, address string) (*TokenInfo, error) {
	pair, err := s.bestPair(ctx, address)
	if err != nil {
		return nil, err
	}
	img := pair.ImageURL()
	return &TokenInfo{
		Address:     address,
		Source:      s.Name(),
		ProviderID:  pair.PairAddress,
		Name:        pair.BaseToken.Name,
		Symbol:      pair.BaseToken.Symbol,
		Decimals:    18,
		Description: fmt.Sprintf("Token on %s with symbol %s", s.Chain, pair.BaseToken.Symbol),
		Images:      Images{Thumb: img, Small: img, Large: img},
	}, nil
}

func (s *DexScreenerSource) MarketCapAt(ctx context.Context, info *TokenInfo, at time.Time) (Quote, error) {
	if info == nil {
		return Quote{}, fmt.Errorf("%w: no token info", provider.ErrNotFound)
	}
	pair, err := s.bestPair(ctx, info.Address)
	if err != nil {
		return Quote{}, err
	}
	price := pair.Price()
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: non-positive current price", provider.ErrUnavailable)
	}
	mc := pair.MarketCapUSD()
	if !mc.IsPositive() {
		return Quote{}, fmt.Errorf("%w: no market cap on pair %s", provider.ErrNotFound, pair.PairAddress)
	}
	pricer := s.Pricer
	if pricer == nil {
		pricer = ChangeWindowPricer{}
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	historical, err := pricer.HistoricalPrice(pair, now, at)
	if err != nil {
		return Quote{}, err
	}
	projected := mc.Div(price).Mul(historical).Floor()
	return Quote{At: at, Price: historical, MarketCap: projected}, nil
}

func (s *DexScreenerSource) bestPair(ctx context.Context, address string) (dexscreener.Pair, error) {
	pairs, err := s.API.TokenPairs(ctx, s.Chain, address)
	if err != nil {
		return dexscreener.Pair{}, err
	}
	pair, ok := dexscreener.BestPair(pairs)
	if !ok {
		return dexscreener.Pair{}, fmt.Errorf("%w: no pairs", provider.ErrNotFound)
	}
	return pair, nil
}

// ChangeWindowPricer back-projects the price from the pair's rolling
// priceChange windows. Within FreshWindow of now the current price is used.
type ChangeWindowPricer struct {
	FreshWindow time.Duration
	MaxLookback time.Duration
}

var changeWindows = []struct {
	key string
	d   time.Duration
}{
	{"m5", 5 * time.Minute},
	{"h1", time.Hour},
	{"h6", 6 * time.Hour},
	{"h24", 24 * time.Hour},
}

func (p ChangeWindowPricer) HistoricalPrice(pair dexscreener.Pair, now, at time.Time) (decimal.Decimal, error) {
	fresh := p.FreshWindow
	if fresh <= 0 {
		fresh = 3 * time.Minute
	}
	maxLookback := p.MaxLookback
	if maxLookback <= 0 {
		maxLookback = 24 * time.Hour
	}
	current := pair.Price()
	elapsed := now.Sub(at)
	if elapsed <= fresh {
		return current, nil
	}
	if elapsed > maxLookback+fresh {
		return decimal.Zero, fmt.Errorf("%w: target %s older than %s", provider.ErrNotFound, elapsed, maxLookback)
	}

	var (
		bestKey  string
		bestDist time.Duration = -1
	)
	for _, w := range changeWindows {
		if _, ok := pair.PriceChange[w.key]; !ok {
			continue
		}
		d := absDuration(elapsed - w.d)
		if bestDist < 0 || d < bestDist {
			bestKey, bestDist = w.key, d
		}
	}
	if bestKey == "" {
		return decimal.Zero, fmt.Errorf("%w: pair has no price change windows", provider.ErrNotFound)
	}
	change, err := decimal.NewFromString(pair.PriceChange[bestKey].String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad %s change: %v", provider.ErrUnavailable, bestKey, err)
	}
	factor := decimal.NewFromInt(1).Add(change.Div(decimal.NewFromInt(100)))
	if !factor.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s change %s not invertible", provider.ErrUnavailable, bestKey, change)
	}
	return current.Div(factor), nil
}
