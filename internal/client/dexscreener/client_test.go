package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetic/internal/provider"
)

const pairsBody = `[
 {"chainId":"base","pairAddress":"0x1","baseToken":{"address":"0xabc","name":"Degen","symbol":"DEGEN"},
  "priceUsd":"0.01","liquidity":{"usd":1000},"marketCap":1000000,"priceChange":{"m5":1,"h1":5,"h6":-10,"h24":25}},
 {"chainId":"base","pairAddress":"0x2","baseToken":{"address":"0xabc","name":"Degen","symbol":"DEGEN"},
  "priceUsd":"0.0102","liquidity":{"usd":250000},"fdv":2000000,"info":{"imageUrl":"https://img/degen.png"}}
]`

func TestTokenPairsAndBestPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/v1/base/0xabc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	gate := provider.NewClient(provider.Options{Name: "dexscreener", CallTimeout: time.Second})
	c := NewClient(srv.URL, gate)
	pairs, err := c.TokenPairs(context.Background(), "base", "0xABC")
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	best, ok := BestPair(pairs)
	require.True(t, ok)
	assert.Equal(t, "0x2", best.PairAddress)
	assert.Equal(t, "2000000", best.MarketCapUSD().String(), "fdv fallback")
	assert.Equal(t, "0.0102", best.Price().String())
	assert.Equal(t, "https://img/degen.png", best.ImageURL())
	assert.Equal(t, "25", string(pairs[0].PriceChange["h24"]))
}

func TestTokenPairsEmptyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, provider.NewClient(provider.Options{Name: "dexscreener"}))
	_, err := c.TokenPairs(context.Background(), "base", "0xabc")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}
