package gormrepository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"memetic/internal/repository"
)

func TestClassifyErrorMapsRetryableCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "23505"} {
		err := classifyError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: code, Message: "boom"}))
		if !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("code %s: expected ErrConflict, got %v", code, err)
		}
	}
}

func TestClassifyErrorPassesThroughOthers(t *testing.T) {
	base := &pgconn.PgError{Code: "42P01", Message: "undefined table"}
	if err := classifyError(base); errors.Is(err, repository.ErrConflict) {
		t.Fatalf("unexpected conflict for %v", err)
	}
	if classifyError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := []struct{ in, fallback, want int }{
		{0, 200, 200},
		{-3, 50, 50},
		{20, 200, 20},
		{10000, 200, 500},
	}
	for _, c := range cases {
		if got := normalizeLimit(c.in, c.fallback); got != c.want {
			t.Fatalf("normalizeLimit(%d,%d) = %d, want %d", c.in, c.fallback, got, c.want)
		}
	}
	if normalizeOffset(-1) != 0 {
		t.Fatalf("negative offset not clamped")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	item, err := s.GetSignal(t.Context(), 1)
	if err != nil || item != nil {
		t.Fatalf("nil store: %v %v", item, err)
	}
	if err := s.WithLedgerTx(t.Context(), nil); err != nil {
		t.Fatalf("nil store tx: %v", err)
	}
}
