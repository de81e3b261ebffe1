package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"memetic/internal/models"
	"memetic/internal/repository"
	"memetic/internal/repository/memory"
)

const deployment = int64(1735689600)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	l := New(store, nil, deployment)
	l.ConflictBackoff = 0
	return l, store
}

func testSignal(id, fid uint64) *models.Signal {
	created := deployment + 3*models.SecondsPerDay + 10
	return &models.Signal{
		SignalID:        id,
		FID:             fid,
		TokenAddress:    "0xAbCdEf0000000000000000000000000000001234",
		Direction:       true,
		DurationDays:    1,
		EntryMarketCap:  decimal.NewFromInt(100),
		CreatedAt:       created,
		ExpiresAt:       created + models.SecondsPerDay,
		BlockNumber:     10,
		TransactionHash: "0xabc",
	}
}

func ptrDec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestCreateSignalDuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	created, err := l.CreateSignal(ctx, testSignal(1, 7), Ref{Block: 10, TxHash: "0xabc", SignalID: 1, Kind: KindCreate})
	require.NoError(t, err)
	require.True(t, created)

	created, err = l.CreateSignal(ctx, testSignal(1, 7), Ref{Block: 10, TxHash: "0xabc", SignalID: 1, Kind: KindCreate})
	require.NoError(t, err)
	assert.False(t, created)

	total, err := store.CountSignals(ctx, repository.ListSignalsParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	state, err := store.GetSystemState(ctx, time.Unix(deployment, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.SignalsToday)

	stats, err := store.GetFidStats(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.TotalSignals)
	assert.Equal(t, int64(1), stats.ActiveSignals)

	sig, err := l.GetSignal(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000001234", sig.TokenAddress)
	assert.Equal(t, models.SignalStatusActive, sig.Status)
}

func TestCreateSignalRejectsMissingIDs(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.CreateSignal(context.Background(), &models.Signal{FID: 1}, Ref{}); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestDay(t *testing.T) {
	l := &Ledger{DeploymentTimestamp: deployment}
	cases := map[int64]int64{
		deployment - 5:                           0,
		deployment:                               0,
		deployment + models.SecondsPerDay - 1:    0,
		deployment + models.SecondsPerDay:        1,
		deployment + 10*models.SecondsPerDay + 7: 10,
	}
	for ts, want := range cases {
		if got := l.Day(ts); got != want {
			t.Fatalf("Day(%d) = %d, want %d", ts, got, want)
		}
	}
}

func TestResolveSignalAppliesDeltaOnce(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	_, err := l.CreateSignal(ctx, testSignal(2, 9), Ref{})
	require.NoError(t, err)

	res := Resolution{
		Outcome:       models.OutcomeWon,
		Delta:         10,
		ExitMarketCap: ptrDec(150),
		Source:        models.ResolutionSourceScheduled,
	}
	out, applied, err := l.ResolveSignal(ctx, 2, res, Ref{})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, models.OutcomeWon, out.Outcome)
	assert.True(t, out.TotalMFS.Equal(decimal.NewFromInt(10)))

	// Redelivery through the chain path with a different delta changes nothing.
	res.Delta = 25
	out, applied, err = l.ResolveSignal(ctx, 2, res, Ref{Block: 99, TxHash: "0xdef"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(10), out.Delta)
	assert.True(t, out.TotalMFS.Equal(decimal.NewFromInt(10)))

	total, err := l.Total(ctx, 9)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(10)), "total=%s", total)

	n, err := store.CountSignalResolutions(ctx, repository.ListAuditParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := store.GetFidStats(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ActiveSignals)
	assert.Equal(t, int64(1), stats.WonSignals)
}

func TestResolveSignalWithoutExitIsResolutionError(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	_, err := l.CreateSignal(ctx, testSignal(3, 9), Ref{})
	require.NoError(t, err)

	out, applied, err := l.ResolveSignal(ctx, 3, Resolution{Outcome: models.OutcomeIndeterminate}, Ref{})
	require.NoError(t, err)
	require.True(t, applied)
	assert.True(t, out.ResolutionError)
	assert.Equal(t, models.SignalStatusResolved, out.Status)
}

func TestResolveSignalAppendsDataSources(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	sig := testSignal(6, 9)
	sig.DataSources = datatypes.JSON(`[{"phase":"entry","source":"coingecko"}]`)
	_, err := l.CreateSignal(ctx, sig, Ref{})
	require.NoError(t, err)

	_, applied, err := l.ResolveSignal(ctx, 6, Resolution{
		Outcome:       models.OutcomeLost,
		Delta:         -5,
		ExitMarketCap: ptrDec(90),
		DataSources:   datatypes.JSON(`[{"phase":"exit","source":"dexscreener"}]`),
	}, Ref{})
	require.NoError(t, err)
	require.True(t, applied)

	got, err := store.GetSignal(ctx, 6)
	require.NoError(t, err)
	var lookups []struct {
		Phase  string `json:"phase"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(got.DataSources, &lookups))
	require.Len(t, lookups, 2)
	assert.Equal(t, "entry", lookups[0].Phase)
	assert.Equal(t, "coingecko", lookups[0].Source)
	assert.Equal(t, "exit", lookups[1].Phase)
	assert.Equal(t, "dexscreener", lookups[1].Source)
}

func TestAppendSources(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		more     string
		want     string
	}{
		{"both lists", `[1]`, `[2,3]`, `[1,2,3]`},
		{"empty existing", ``, `[2]`, `[2]`},
		{"null existing", `null`, `[2]`, `[2]`},
		{"legacy object", `{"source":"a"}`, `[2]`, `[{"source":"a"},2]`},
		{"nothing new", `[1]`, ``, `[1]`},
	}
	for _, tc := range cases {
		got := appendSources(datatypes.JSON(tc.existing), datatypes.JSON(tc.more))
		if string(got) != tc.want {
			t.Fatalf("%s: appendSources = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestResolveSignalUnknown(t *testing.T) {
	l, _ := newTestLedger(t)
	_, _, err := l.ResolveSignal(context.Background(), 404, Resolution{}, Ref{})
	if !errors.Is(err, ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestApplyScoreDeltaIdempotentPerRef(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	ref := Ref{Block: 5, TxHash: "0x1", SignalID: 0, Kind: KindAdjust}

	total, applied, err := l.ApplyScoreDelta(ctx, 4, 7, ref)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, "7", total.String())

	total, applied, err = l.ApplyScoreDelta(ctx, 4, 7, ref)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "7", total.String())
}

func TestManualCorrectAdjustsTotal(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	_, _, err := l.ApplyScoreDelta(ctx, 11, 15, Ref{Block: 1, TxHash: "0xseed", Kind: KindAdjust})
	require.NoError(t, err)
	_, err = l.CreateSignal(ctx, testSignal(5, 11), Ref{})
	require.NoError(t, err)
	out, _, err := l.ResolveSignal(ctx, 5, Resolution{Outcome: models.OutcomeWon, Delta: 5, ExitMarketCap: ptrDec(150)}, Ref{})
	require.NoError(t, err)
	require.Equal(t, "20", out.TotalMFS.String())

	ref := Ref{Block: 50, TxHash: "0xfix"}
	corr, err := l.ManualCorrect(ctx, 5, CorrectionInput{NewDelta: 8, NewEntryMarketCap: ptrDec(90)}, "entry price was stale", ref)
	require.NoError(t, err)
	assert.False(t, corr.Replayed)
	assert.Equal(t, "23", corr.Record.NewTotalMFS.String())
	assert.Equal(t, int64(5), corr.Record.OldMFSDelta)
	assert.Equal(t, int64(8), corr.Record.NewMFSDelta)
	assert.Equal(t, "100", corr.Record.OldEntryMarketCap.String())
	assert.Equal(t, "90", corr.Record.NewEntryMarketCap.String())

	replay, err := l.ManualCorrect(ctx, 5, CorrectionInput{NewDelta: 8}, "entry price was stale", ref)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, corr.Record.ID, replay.Record.ID)

	_, err = l.ManualCorrect(ctx, 5, CorrectionInput{NewDelta: 1}, "again", Ref{Block: 51, TxHash: "0xother"})
	assert.ErrorIs(t, err, ErrAlreadyCorrected)

	total, err := l.Total(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "23", total.String())

	n, err := store.CountSignalManualUpdates(ctx, repository.ListAuditParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sig, err := l.GetSignal(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusManuallyUpdated, sig.Status)
	assert.Equal(t, int64(8), sig.MFSDelta)
}

func TestManualCorrectErrors(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	_, err := l.CreateSignal(ctx, testSignal(6, 12), Ref{})
	require.NoError(t, err)

	_, err = l.ManualCorrect(ctx, 6, CorrectionInput{NewDelta: 3}, "too early", Ref{Block: 2})
	assert.ErrorIs(t, err, ErrSignalNotYetResolved)

	_, err = l.ManualCorrect(ctx, 6, CorrectionInput{NewDelta: 3}, "   ", Ref{Block: 2})
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = l.ManualCorrect(ctx, 77, CorrectionInput{NewDelta: 3}, "missing", Ref{Block: 2})
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestConflictsAreRetried(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	store.FailNextCommits(2)

	total, applied, err := l.ApplyScoreDelta(ctx, 3, 4, Ref{Block: 1, Kind: KindAdjust})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "4", total.String())
	assert.Equal(t, 3, store.TxCount())
}

func TestConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	l.MaxConflictRetries = 1
	store.FailNextCommits(5)

	_, _, err := l.ApplyScoreDelta(ctx, 3, 4, Ref{Block: 1, Kind: KindAdjust})
	assert.ErrorIs(t, err, ErrLedgerConflict)

	total, err := l.Total(ctx, 3)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestConcurrentDeltasSameAuthor(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := l.ApplyScoreDelta(ctx, 8, 1, Ref{Block: uint64(i + 1), Kind: KindAdjust})
			if err != nil {
				t.Errorf("apply: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total, err := l.Total(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "20", total.String())
	assert.Equal(t, 0, l.locks.size())
}

func TestRefString(t *testing.T) {
	ref := Ref{Block: 12, TxHash: "0xABC", SignalID: 3, Kind: KindResolve}
	if got := ref.String(); got != "12:0xabc:3:resolve" {
		t.Fatalf("unexpected ref %q", got)
	}
	if got := ref.auditID(); got != "3-12" {
		t.Fatalf("unexpected audit id %q", got)
	}
	if got := (Ref{SignalID: 3}).auditID(); got != "3-sched" {
		t.Fatalf("unexpected scheduled audit id %q", got)
	}
}
