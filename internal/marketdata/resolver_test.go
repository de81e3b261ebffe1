package marketdata

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetic/internal/cache"
	"memetic/internal/provider"
)

type stubSource struct {
	name          string
	metaErr       error
	capErr        error
	marketCap     decimal.Decimal
	metadataCalls int
	capCalls      int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Metadata(_ context.Context, address string) (*TokenInfo, error) {
	s.metadataCalls++
	if s.metaErr != nil {
		return nil, s.metaErr
	}
	return &TokenInfo{Address: address, Name: s.name + " token", Symbol: "TKN", Decimals: 18}, nil
}

func (s *stubSource) MarketCapAt(_ context.Context, _ *TokenInfo, at time.Time) (Quote, error) {
	s.capCalls++
	if s.capErr != nil {
		return Quote{}, s.capErr
	}
	return Quote{At: at, Price: decimal.NewFromFloat(0.5), MarketCap: s.marketCap}, nil
}

const token = "0xabcdef0000000000000000000000000000001234"

func TestResolveUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubSource{name: "coingecko", marketCap: decimal.RequireFromString("150.9")}
	fallback := &stubSource{name: "dexscreener", marketCap: decimal.NewFromInt(999)}
	r := &Resolver{Sources: []Source{primary, fallback}}

	res, err := r.Resolve(context.Background(), strings.ToUpper(token), time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, "coingecko", res.Source)
	assert.Equal(t, "150", res.MarketCap.String(), "market cap is floored")
	assert.False(t, res.ResolutionError)
	assert.Equal(t, 0, fallback.metadataCalls)
	assert.NotEmpty(t, res.AttemptID)
}

func TestResolveFallsBackOnPrimaryTimeout(t *testing.T) {
	primary := &stubSource{name: "coingecko", capErr: fmt.Errorf("%w: context deadline exceeded", provider.ErrUnavailable)}
	fallback := &stubSource{name: "dexscreener", marketCap: decimal.NewFromInt(4200)}
	r := &Resolver{Sources: []Source{primary, fallback}}

	res, err := r.Resolve(context.Background(), token, time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, "dexscreener", res.Source)
	assert.True(t, res.MarketCap.Equal(decimal.NewFromInt(4200)))
	assert.False(t, res.ResolutionError)
	require.Len(t, res.Attempts, 4)
	assert.Equal(t, "unavailable", res.Attempts[1].Kind)
	assert.True(t, res.Attempts[3].OK)
}

func TestResolveAllFailingYieldsPlaceholder(t *testing.T) {
	primary := &stubSource{name: "coingecko", metaErr: provider.ErrRateLimited}
	fallback := &stubSource{name: "dexscreener", metaErr: provider.ErrNotFound}
	r := &Resolver{Sources: []Source{primary, fallback}}

	res, err := r.Resolve(context.Background(), token, time.Unix(100, 0))
	require.NoError(t, err)
	assert.True(t, res.ResolutionError)
	assert.True(t, res.MarketCap.IsZero())
	assert.Equal(t, PlaceholderSource, res.Source)
	assert.Equal(t, "Unknown Token (0xabcd…1234)", res.Token.Name)
	assert.Equal(t, "UNKNOWN", res.Token.Symbol)
	assert.Equal(t, 18, res.Token.Decimals)
	assert.Len(t, res.Attempts, 2)
}

func TestResolveKeepsMetadataWhenOnlyMarketCapMissing(t *testing.T) {
	primary := &stubSource{name: "coingecko", marketCap: decimal.Zero}
	r := &Resolver{Sources: []Source{primary}}

	res, err := r.Resolve(context.Background(), token, time.Unix(100, 0))
	require.NoError(t, err)
	assert.True(t, res.ResolutionError)
	assert.Equal(t, "coingecko token", res.Token.Name)
}

func TestResolveCachesMetadataButNotMarketCap(t *testing.T) {
	primary := &stubSource{name: "coingecko", marketCap: decimal.NewFromInt(10)}
	r := &Resolver{Sources: []Source{primary}, Cache: cache.NewMemoryStore(), CacheTTL: time.Minute}

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), token, time.Unix(int64(100+i), 0))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, primary.metadataCalls)
	assert.Equal(t, 3, primary.capCalls)
}

func TestResolveRequiresAddress(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve(context.Background(), "  ", time.Now())
	assert.Error(t, err)
}
