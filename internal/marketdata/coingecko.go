package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"memetic/internal/client/coingecko"
	"memetic/internal/provider"
)

type CoinGeckoAPI interface {
	CoinByContract(ctx context.Context, platform, address string) (*coingecko.Coin, error)
	MarketChartRange(ctx context.Context, coinID string, from, to int64) (*coingecko.MarketChart, error)
}

// CoinGeckoSource resolves historical market caps by direct series lookup.
type CoinGeckoSource struct {
	API      CoinGeckoAPI
	Platform string
	// Window is the half-width of the series requested around the target time.
	Window time.Duration
}

func (s *CoinGeckoSource) Name() string {
	return "coingecko"
}

func (s *CoinGeckoSource) Metadata(ctx context.Context, address string) (*TokenInfo, error) {
	coin, err := s.API.CoinByContract(ctx, s.Platform, address)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{
		Address:     address,
		Source:      s.Name(),
		ProviderID:  coin.ID,
		Name:        coin.Name,
		Symbol:      coin.Symbol,
		Decimals:    coin.Decimals(s.Platform),
		Categories:  coin.Categories,
		Description: coin.Description["en"],
		Images:      Images{Thumb: coin.Image.Thumb, Small: coin.Image.Small, Large: coin.Image.Large},
	}, nil
}

func (s *CoinGeckoSource) MarketCapAt(ctx context.Context, info *TokenInfo, at time.Time) (Quote, error) {
	if info == nil || info.ProviderID == "" {
		return Quote{}, fmt.Errorf("%w: no coingecko id", provider.ErrNotFound)
	}
	window := s.Window
	if window <= 0 {
		window = time.Hour
	}
	target := at.Unix()
	chart, err := s.API.MarketChartRange(ctx, info.ProviderID, target-int64(window/time.Second), target+int64(window/time.Second))
	if err != nil {
		return Quote{}, err
	}
	series := chartSeries(chart)
	p, ok := NearestPoint(series, at)
	if !ok {
		return Quote{}, fmt.Errorf("%w: empty market cap series for %s", provider.ErrNotFound, info.ProviderID)
	}
	return Quote{At: p.At, Price: p.Price, MarketCap: p.MarketCap}, nil
}

// chartSeries zips market caps with prices at the same index.
func chartSeries(chart *coingecko.MarketChart) []Point {
	if chart == nil {
		return nil
	}
	out := make([]Point, 0, len(chart.MarketCaps))
	for i, row := range chart.MarketCaps {
		if len(row) < 2 {
			continue
		}
		ms, err := row[0].Int64()
		if err != nil {
			f, ferr := row[0].Float64()
			if ferr != nil {
				continue
			}
			ms = int64(f)
		}
		mc, err := decimal.NewFromString(row[1].String())
		if err != nil {
			continue
		}
		price := decimal.Zero
		if i < len(chart.Prices) && len(chart.Prices[i]) >= 2 {
			if v, err := decimal.NewFromString(chart.Prices[i][1].String()); err == nil {
				price = v
			}
		}
		out = append(out, Point{At: time.UnixMilli(ms), Price: price, MarketCap: mc})
	}
	return out
}
