package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNearestPointPrefersSmallestDistance(t *testing.T) {
	at := time.Unix(1_736_000_000, 0)
	series := []Point{
		{At: at.Add(-3600 * time.Second), MarketCap: decimal.NewFromInt(100)},
		{At: at.Add(1800 * time.Second), MarketCap: decimal.NewFromInt(200)},
	}
	p, ok := NearestPoint(series, at)
	if !ok {
		t.Fatalf("expected a point")
	}
	if !p.MarketCap.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("picked %s, want the t+1800 point", p.MarketCap)
	}
}

func TestNearestPointTieGoesToEarliest(t *testing.T) {
	at := time.Unix(1_736_000_000, 0)
	series := []Point{
		{At: at.Add(600 * time.Second), MarketCap: decimal.NewFromInt(2)},
		{At: at.Add(-600 * time.Second), MarketCap: decimal.NewFromInt(1)},
	}
	p, _ := NearestPoint(series, at)
	if !p.MarketCap.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("tie should pick earliest, got %s", p.MarketCap)
	}
}

func TestNearestPointEmpty(t *testing.T) {
	if _, ok := NearestPoint(nil, time.Now()); ok {
		t.Fatalf("empty series must not yield a point")
	}
}
