package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memetic/internal/cache"
	"memetic/internal/provider"
)

const (
	PlaceholderSource = "placeholder"
	defaultCacheTTL   = 10 * time.Minute
)

// Observer is notified once per Resolve call.
type Observer interface {
	ObserveResolve(source string, resolutionError bool, attempts int)
}

// Resolver walks Sources in priority order until one yields a market cap.
// It never fails for lack of data: the last resort is a placeholder result
// flagged with ResolutionError.
type Resolver struct {
	Sources         []Source
	Cache           cache.Store
	CacheTTL        time.Duration
	PlaceholderName string
	Logger          *zap.Logger
	Observer        Observer
}

func (r *Resolver) Resolve(ctx context.Context, address string, at time.Time) (Result, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return Result{}, fmt.Errorf("token address is required")
	}
	log := r.logger()
	res := Result{AttemptID: uuid.NewString()}
	var firstInfo *TokenInfo

	for _, src := range r.Sources {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		info, attempt, err := r.metadata(ctx, src, address)
		res.Attempts = append(res.Attempts, attempt)
		if err != nil {
			continue
		}
		if firstInfo == nil {
			firstInfo = info
		}

		start := time.Now()
		quote, err := src.MarketCapAt(ctx, info, at)
		if err == nil && !quote.MarketCap.IsPositive() {
			err = fmt.Errorf("%w: non-positive market cap", provider.ErrNotFound)
		}
		res.Attempts = append(res.Attempts, newAttempt(src.Name(), "market_cap", start, err))
		if err != nil {
			log.Debug("market cap lookup failed",
				zap.String("attempt_id", res.AttemptID),
				zap.String("source", src.Name()),
				zap.String("token", address),
				zap.Error(err))
			continue
		}

		res.Token = *info
		res.Quote = quote
		res.MarketCap = quote.MarketCap.Floor()
		res.Source = src.Name()
		r.observe(res)
		return res, nil
	}

	if firstInfo != nil {
		res.Token = *firstInfo
	} else {
		res.Token = r.placeholderToken(address)
	}
	res.Quote = Quote{At: at, Price: decimal.Zero, MarketCap: decimal.Zero}
	res.MarketCap = decimal.Zero
	res.Source = PlaceholderSource
	res.ResolutionError = true
	log.Warn("no market data from any provider",
		zap.String("attempt_id", res.AttemptID),
		zap.String("token", address),
		zap.Time("at", at),
		zap.Int("attempts", len(res.Attempts)))
	r.observe(res)
	return res, nil
}

// Metadata returns the first provider's metadata for address, or the placeholder.
func (r *Resolver) Metadata(ctx context.Context, address string) TokenInfo {
	address = strings.ToLower(strings.TrimSpace(address))
	for _, src := range r.Sources {
		if info, _, err := r.metadata(ctx, src, address); err == nil {
			return *info
		}
	}
	return r.placeholderToken(address)
}

func (r *Resolver) metadata(ctx context.Context, src Source, address string) (*TokenInfo, Attempt, error) {
	key := "tokeninfo:" + src.Name() + ":" + address
	start := time.Now()
	var cached TokenInfo
	if found, err := cache.GetJSON(ctx, r.Cache, key, &cached); err == nil && found {
		a := newAttempt(src.Name(), "metadata", start, nil)
		a.Cached = true
		return &cached, a, nil
	}

	info, err := src.Metadata(ctx, address)
	if err == nil && info == nil {
		err = fmt.Errorf("%w: empty metadata", provider.ErrNotFound)
	}
	attempt := newAttempt(src.Name(), "metadata", start, err)
	if err != nil {
		r.logger().Debug("metadata lookup failed", zap.String("source", src.Name()), zap.String("token", address), zap.Error(err))
		return nil, attempt, err
	}
	info.Address = address
	if info.Source == "" {
		info.Source = src.Name()
	}
	ttl := r.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if err := cache.SetJSON(ctx, r.Cache, key, info, ttl); err != nil {
		r.logger().Warn("token metadata cache write failed", zap.String("key", key), zap.Error(err))
	}
	return info, attempt, nil
}

func (r *Resolver) placeholderToken(address string) TokenInfo {
	name := r.PlaceholderName
	if name == "" {
		name = "Unknown Token"
	}
	return TokenInfo{
		Address:     address,
		Source:      PlaceholderSource,
		Name:        fmt.Sprintf("%s (%s)", name, shortAddress(address)),
		Symbol:      "UNKNOWN",
		Decimals:    18,
		Description: "Token data could not be fetched",
	}
}

func (r *Resolver) observe(res Result) {
	if r.Observer != nil {
		r.Observer.ObserveResolve(res.Source, res.ResolutionError, len(res.Attempts))
	}
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func newAttempt(source, op string, start time.Time, err error) Attempt {
	a := Attempt{Source: source, Op: op, OK: err == nil, TookMs: time.Since(start).Milliseconds()}
	if err != nil {
		a.Kind = provider.Kind(err)
		a.Error = err.Error()
	}
	return a
}

// shortAddress renders 0xabcdef...1234 as 0xabcd…1234.
func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
