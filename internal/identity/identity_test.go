package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetic/internal/client/neynar"
	"memetic/internal/repository"
	"memetic/internal/repository/memory"
)

type fakeLookup struct {
	calls [][]uint64
	err   error
}

func (f *fakeLookup) UsersByFID(_ context.Context, fids []uint64) ([]neynar.User, error) {
	f.calls = append(f.calls, append([]uint64(nil), fids...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([]neynar.User, 0, len(fids))
	for _, fid := range fids {
		u := neynar.User{FID: fid, Username: "user", CustodyAddress: "0xABC"}
		u.VerifiedAddresses.EthAddresses = []string{"0xDEF"}
		out = append(out, u)
	}
	return out, nil
}

func TestEnsureProfileSkipsFreshProfiles(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	lookup := &fakeLookup{}
	s := &Service{Lookup: lookup, Store: store, MaxAge: time.Hour}

	require.NoError(t, s.EnsureProfile(ctx, 7))
	require.NoError(t, s.EnsureProfile(ctx, 7))
	assert.Len(t, lookup.calls, 1)

	u, err := store.GetUser(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "0xabc", u.CustodyAddress)
	assert.JSONEq(t, `["0xdef"]`, string(u.VerifiedAddresses))
}

func TestEnsureProfileSurfacesLookupErrors(t *testing.T) {
	s := &Service{Lookup: &fakeLookup{err: errors.New("429")}, Store: memory.New()}
	assert.Error(t, s.EnsureProfile(context.Background(), 7))
}

func TestRefreshStaleAuthors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, fid := range []uint64{1, 2, 3} {
		require.NoError(t, store.WithLedgerTx(ctx, func(tx repository.LedgerTx) error {
			return tx.IncrementFidStats(ctx, fid, repository.FidStatsDelta{Total: 1})
		}))
	}
	lookup := &fakeLookup{}
	s := &Service{Lookup: lookup, Store: store}

	n, err := s.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, lookup.calls, 1)
	assert.Equal(t, []uint64{1, 2, 3}, lookup.calls[0])

	n, err = s.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
