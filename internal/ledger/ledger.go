package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"memetic/internal/models"
	"memetic/internal/repository"
)

// Ledger owns every write to signals and author totals. Writes for one
// author are serialized in-process and inside the database by a row lock.
type Ledger struct {
	Repo   repository.LedgerRepository
	Logger *zap.Logger

	// DeploymentTimestamp anchors day numbering for daily signal counts.
	DeploymentTimestamp int64
	MaxConflictRetries  int
	ConflictBackoff     time.Duration

	locks keyedMutex
}

func New(repo repository.LedgerRepository, logger *zap.Logger, deployment int64) *Ledger {
	return &Ledger{
		Repo:                repo,
		Logger:              logger,
		DeploymentTimestamp: deployment,
		MaxConflictRetries:  5,
		ConflictBackoff:     20 * time.Millisecond,
	}
}

// Resolution is what a resolution path decided for a signal.
type Resolution struct {
	Outcome         string
	Delta           int64
	ExitMarketCap   *decimal.Decimal
	ResolutionError bool
	DataSources     datatypes.JSON
	Source          string
	ResolvedAt      time.Time
}

// Outcome is the stored result of a resolution.
type Outcome struct {
	SignalID        uint64
	FID             uint64
	Outcome         string
	Delta           int64
	ExitMarketCap   *decimal.Decimal
	ResolutionError bool
	Status          string
	TotalMFS        decimal.Decimal
}

// CorrectionInput replaces the entry market cap and/or the delta of a resolved signal.
// Outcome is optional; empty keeps the stored outcome.
type CorrectionInput struct {
	NewEntryMarketCap *decimal.Decimal
	NewDelta          int64
	Outcome           string
}

// Correction is the audit record of an applied (or replayed) correction.
type Correction struct {
	Record   models.SignalManualUpdate
	Replayed bool
}

// Day converts a chain timestamp into the day index since deployment.
func (l *Ledger) Day(createdAt int64) int64 {
	d := createdAt - l.DeploymentTimestamp
	if d < 0 {
		return 0
	}
	return d / models.SecondsPerDay
}

func (l *Ledger) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// commit runs fn in a ledger transaction under the author's lock and
// retries the whole transaction on repository.ErrConflict.
func (l *Ledger) commit(ctx context.Context, fid uint64, fn func(tx repository.LedgerTx) error) error {
	if l == nil || l.Repo == nil {
		return errors.New("ledger: repository not configured")
	}
	unlock := l.locks.lock(fid)
	defer unlock()

	retries := l.MaxConflictRetries
	if retries < 0 {
		retries = 0
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = l.Repo.WithLedgerTx(ctx, fn)
		if err == nil || !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if attempt == retries {
			break
		}
		l.log().Debug("ledger conflict, retrying",
			zap.Uint64("fid", fid),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if werr := sleepCtx(ctx, l.backoff(attempt)); werr != nil {
			return werr
		}
	}
	return fmt.Errorf("%w: %v", ErrLedgerConflict, err)
}

func (l *Ledger) backoff(attempt int) time.Duration {
	base := l.ConflictBackoff
	if base <= 0 {
		return 0
	}
	d := base << attempt
	return d/2 + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreateSignal inserts sig once. A second delivery of the same id is a
// silent no-op reported as created=false.
func (l *Ledger) CreateSignal(ctx context.Context, sig *models.Signal, ref Ref) (bool, error) {
	if sig == nil || sig.SignalID == 0 || sig.FID == 0 {
		return false, ErrInvalidSignal
	}
	sig.TokenAddress = strings.ToLower(strings.TrimSpace(sig.TokenAddress))
	sig.Status = models.SignalStatusActive
	sig.Resolved = false
	sig.Outcome = ""
	sig.MFSDelta = 0
	sig.ExitMarketCap = nil

	var created bool
	err := l.commit(ctx, sig.FID, func(tx repository.LedgerTx) error {
		created = false
		row := *sig
		ok, err := tx.InsertSignalIgnore(ctx, &row)
		if err != nil || !ok {
			return err
		}
		if err := tx.IncrementDailySignalCount(ctx, sig.FID, l.Day(sig.CreatedAt)); err != nil {
			return err
		}
		if err := tx.IncrementFidStats(ctx, sig.FID, repository.FidStatsDelta{Total: 1, Active: 1}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create signal %d: %w", sig.SignalID, err)
	}
	if !created {
		l.log().Debug("signal already recorded",
			zap.Uint64("signal_id", sig.SignalID),
			zap.String("ref", ref.String()),
		)
	}
	return created, nil
}

// applyScoreDelta locks the author row, then claims ref. A ref that was
// already claimed leaves the total untouched.
func applyScoreDelta(ctx context.Context, tx repository.LedgerTx, fid uint64, delta int64, ref Ref) (decimal.Decimal, bool, error) {
	row, err := tx.LockAuthorScore(ctx, fid)
	if err != nil {
		return decimal.Zero, false, err
	}
	inserted, err := tx.InsertScoreApplication(ctx, &models.ScoreApplication{
		SourceRef: ref.String(),
		FID:       fid,
		Delta:     delta,
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	if !inserted {
		return row.TotalMFS, false, nil
	}
	row.TotalMFS = row.TotalMFS.Add(decimal.NewFromInt(delta))
	if ref.Block > 0 {
		row.LastUpdatedBlock = ref.Block
		row.LastUpdatedTx = strings.ToLower(ref.TxHash)
	}
	row.LastSourceRef = ref.String()
	if err := tx.SaveAuthorScore(ctx, row); err != nil {
		return decimal.Zero, false, err
	}
	return row.TotalMFS, true, nil
}

// ApplyScoreDelta adds delta to the author's total once per ref.
func (l *Ledger) ApplyScoreDelta(ctx context.Context, fid uint64, delta int64, ref Ref) (decimal.Decimal, bool, error) {
	var (
		total   decimal.Decimal
		applied bool
	)
	err := l.commit(ctx, fid, func(tx repository.LedgerTx) error {
		var err error
		total, applied, err = applyScoreDelta(ctx, tx, fid, delta, ref)
		return err
	})
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("apply score delta fid=%d: %w", fid, err)
	}
	return total, applied, nil
}

// appendSources concatenates two JSON lists of market data lookups. A value
// that is not a list is kept as one element.
func appendSources(existing, more datatypes.JSON) datatypes.JSON {
	items := append(sourceItems(existing), sourceItems(more)...)
	if len(items) == 0 {
		return existing
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return more
	}
	return datatypes.JSON(raw)
}

func sourceItems(raw datatypes.JSON) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err == nil {
		return items
	}
	return []json.RawMessage{json.RawMessage(trimmed)}
}

// ResolveSignal moves an ACTIVE signal to RESOLVED and applies its delta.
// Any other status returns the stored outcome with applied=false.
func (l *Ledger) ResolveSignal(ctx context.Context, signalID uint64, res Resolution, ref Ref) (Outcome, bool, error) {
	current, err := l.Repo.GetSignal(ctx, signalID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("resolve signal %d: %w", signalID, err)
	}
	if current == nil {
		return Outcome{}, false, ErrSignalNotFound
	}
	if res.Outcome == models.OutcomeIndeterminate || res.ExitMarketCap == nil {
		res.ResolutionError = true
	}
	if res.Outcome == "" {
		res.Outcome = models.OutcomeIndeterminate
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	ref.SignalID = signalID
	if ref.Kind == "" {
		ref.Kind = KindResolve
	}

	var (
		out     Outcome
		applied bool
	)
	err = l.commit(ctx, current.FID, func(tx repository.LedgerTx) error {
		applied = false
		sig, err := tx.GetSignalForUpdate(ctx, signalID)
		if err != nil {
			return err
		}
		if sig == nil {
			return ErrSignalNotFound
		}
		if sig.Status != models.SignalStatusActive {
			score, err := tx.LockAuthorScore(ctx, sig.FID)
			if err != nil {
				return err
			}
			out = outcomeOf(sig, score.TotalMFS)
			return nil
		}

		total, _, err := applyScoreDelta(ctx, tx, sig.FID, res.Delta, ref)
		if err != nil {
			return err
		}

		resolvedAt := res.ResolvedAt
		sig.Status = models.SignalStatusResolved
		sig.Resolved = true
		sig.Outcome = res.Outcome
		sig.MFSDelta = res.Delta
		sig.ExitMarketCap = res.ExitMarketCap
		sig.ResolutionError = res.ResolutionError
		sig.DataSources = appendSources(sig.DataSources, res.DataSources)
		sig.ResolvedAt = &resolvedAt
		sig.ResolutionSource = res.Source
		sig.ResolutionRef = ref.String()
		if err := tx.UpdateSignalOutcome(ctx, sig); err != nil {
			return err
		}

		if _, err := tx.InsertSignalResolution(ctx, &models.SignalResolution{
			ID:              ref.auditID(),
			SignalID:        sig.SignalID,
			FID:             sig.FID,
			Outcome:         res.Outcome,
			MFSDelta:        res.Delta,
			NewTotalMFS:     total,
			ExitMarketCap:   res.ExitMarketCap,
			ResolutionError: res.ResolutionError,
			BlockNumber:     ref.Block,
			TransactionHash: strings.ToLower(ref.TxHash),
			Source:          res.Source,
			SourceRef:       ref.String(),
		}); err != nil {
			return err
		}

		if err := tx.IncrementFidStats(ctx, sig.FID, statsDelta(res.Outcome, -1)); err != nil {
			return err
		}
		out = outcomeOf(sig, total)
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSignalNotFound) {
			return Outcome{}, false, err
		}
		return Outcome{}, false, fmt.Errorf("resolve signal %d: %w", signalID, err)
	}

	if applied {
		l.log().Info("signal resolved",
			zap.Uint64("signal_id", signalID),
			zap.Uint64("fid", out.FID),
			zap.String("outcome", out.Outcome),
			zap.Int64("mfs_delta", out.Delta),
			zap.String("total_mfs", out.TotalMFS.String()),
			zap.Bool("resolution_error", out.ResolutionError),
			zap.String("source", res.Source),
		)
	}
	return out, applied, nil
}

// ManualCorrect applies new_delta - old_delta to the author and marks the
// signal MANUALLY_UPDATED. Replaying the same ref returns the recorded correction.
func (l *Ledger) ManualCorrect(ctx context.Context, signalID uint64, in CorrectionInput, reason string, ref Ref) (Correction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Correction{}, ErrReasonRequired
	}
	current, err := l.Repo.GetSignal(ctx, signalID)
	if err != nil {
		return Correction{}, fmt.Errorf("manual correct %d: %w", signalID, err)
	}
	if current == nil {
		return Correction{}, ErrSignalNotFound
	}
	ref.SignalID = signalID
	ref.Kind = KindManual

	var result Correction
	err = l.commit(ctx, current.FID, func(tx repository.LedgerTx) error {
		result = Correction{}
		prev, err := tx.GetSignalManualUpdate(ctx, ref.String())
		if err != nil {
			return err
		}
		if prev != nil {
			result = Correction{Record: *prev, Replayed: true}
			return nil
		}

		sig, err := tx.GetSignalForUpdate(ctx, signalID)
		if err != nil {
			return err
		}
		switch {
		case sig == nil:
			return ErrSignalNotFound
		case sig.Status == models.SignalStatusActive:
			return ErrSignalNotYetResolved
		case sig.Status == models.SignalStatusManuallyUpdated:
			return ErrAlreadyCorrected
		}

		oldEntry := sig.EntryMarketCap
		oldDelta := sig.MFSDelta
		total, _, err := applyScoreDelta(ctx, tx, sig.FID, in.NewDelta-oldDelta, ref)
		if err != nil {
			return err
		}

		oldOutcome := sig.Outcome
		sig.Status = models.SignalStatusManuallyUpdated
		sig.MFSDelta = in.NewDelta
		if in.NewEntryMarketCap != nil {
			sig.EntryMarketCap = *in.NewEntryMarketCap
		}
		if in.Outcome != "" {
			sig.Outcome = in.Outcome
		}
		if err := tx.UpdateSignalOutcome(ctx, sig); err != nil {
			return err
		}
		if sig.Outcome != oldOutcome {
			d := statsDelta(sig.Outcome, 0)
			undo := statsDelta(oldOutcome, 0)
			d.Won -= undo.Won
			d.Lost -= undo.Lost
			d.Indeterminate -= undo.Indeterminate
			if err := tx.IncrementFidStats(ctx, sig.FID, d); err != nil {
				return err
			}
		}

		record := models.SignalManualUpdate{
			ID:                ref.String(),
			SignalID:          sig.SignalID,
			FID:               sig.FID,
			OldEntryMarketCap: oldEntry,
			NewEntryMarketCap: sig.EntryMarketCap,
			OldMFSDelta:       oldDelta,
			NewMFSDelta:       in.NewDelta,
			NewTotalMFS:       total,
			Reason:            reason,
			BlockNumber:       ref.Block,
			TransactionHash:   strings.ToLower(ref.TxHash),
		}
		if _, err := tx.InsertSignalManualUpdate(ctx, &record); err != nil {
			return err
		}
		result = Correction{Record: record}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSignalNotFound),
			errors.Is(err, ErrSignalNotYetResolved),
			errors.Is(err, ErrAlreadyCorrected):
			return Correction{}, err
		}
		return Correction{}, fmt.Errorf("manual correct %d: %w", signalID, err)
	}

	if !result.Replayed {
		l.log().Info("signal manually corrected",
			zap.Uint64("signal_id", signalID),
			zap.Uint64("fid", result.Record.FID),
			zap.Int64("old_mfs_delta", result.Record.OldMFSDelta),
			zap.Int64("new_mfs_delta", result.Record.NewMFSDelta),
			zap.String("total_mfs", result.Record.NewTotalMFS.String()),
		)
	}
	return result, nil
}

// GetSignal returns ErrSignalNotFound for unknown ids.
func (l *Ledger) GetSignal(ctx context.Context, signalID uint64) (*models.Signal, error) {
	sig, err := l.Repo.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, ErrSignalNotFound
	}
	return sig, nil
}

// Total returns the author's current total, zero for unknown authors.
func (l *Ledger) Total(ctx context.Context, fid uint64) (decimal.Decimal, error) {
	row, err := l.Repo.GetAuthorScore(ctx, fid)
	if err != nil {
		return decimal.Zero, err
	}
	if row == nil {
		return decimal.Zero, nil
	}
	return row.TotalMFS, nil
}

func outcomeOf(sig *models.Signal, total decimal.Decimal) Outcome {
	return Outcome{
		SignalID:        sig.SignalID,
		FID:             sig.FID,
		Outcome:         sig.Outcome,
		Delta:           sig.MFSDelta,
		ExitMarketCap:   sig.ExitMarketCap,
		ResolutionError: sig.ResolutionError,
		Status:          sig.Status,
		TotalMFS:        total,
	}
}

func statsDelta(outcome string, active int64) repository.FidStatsDelta {
	d := repository.FidStatsDelta{Active: active}
	switch outcome {
	case models.OutcomeWon:
		d.Won = 1
	case models.OutcomeLost:
		d.Lost = 1
	default:
		d.Indeterminate = 1
	}
	return d
}
