package correction

import (
	"context"

	"go.uber.org/zap"

	"memetic/internal/events"
	"memetic/internal/ledger"
	"memetic/internal/models"
	"memetic/internal/scoring"
)

// Handler applies privileged corrections announced on chain.
type Handler struct {
	Ledger *ledger.Ledger
	Logger *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Apply replaces the entry market cap and delta of a resolved signal.
func (h *Handler) Apply(ctx context.Context, ev events.SignalManuallyUpdated) (ledger.Correction, error) {
	log := h.log().With(zap.Uint64("signal_id", ev.SignalID), zap.Uint64("block", ev.BlockNumber))

	in := ledger.CorrectionInput{NewDelta: ev.NewMFSDelta}
	if ev.NewEntryMarketCap.IsPositive() {
		entry := ev.NewEntryMarketCap.Floor()
		in.NewEntryMarketCap = &entry
		// A new entry may flip the outcome against the stored exit.
		if sig, err := h.Ledger.GetSignal(ctx, ev.SignalID); err == nil && sig.Status == models.SignalStatusResolved {
			in.Outcome = scoring.DecideOutcome(sig.IsUp(), entry, sig.ExitMarketCap)
		}
	}

	res, err := h.Ledger.ManualCorrect(ctx, ev.SignalID, in, ev.Reason, ledger.Ref{
		Block:    ev.BlockNumber,
		TxHash:   ev.TxHash,
		LogIndex: ev.LogIndex,
	})
	if err != nil {
		log.Warn("manual correction rejected", zap.Error(err))
		return res, err
	}
	if res.Replayed {
		log.Debug("manual correction already applied", zap.String("audit_id", res.Record.ID))
		return res, nil
	}

	if ev.OldMFSDelta != res.Record.OldMFSDelta {
		log.Warn("correction old delta disagrees with ledger",
			zap.Int64("event_old_mfs_delta", ev.OldMFSDelta),
			zap.Int64("ledger_old_mfs_delta", res.Record.OldMFSDelta),
		)
	}
	if !ev.NewTotalMFS.IsZero() && !ev.NewTotalMFS.Equal(res.Record.NewTotalMFS) {
		log.Warn("corrected total disagrees with chain",
			zap.Uint64("fid", res.Record.FID),
			zap.String("total_mfs", res.Record.NewTotalMFS.String()),
			zap.String("chain_total_mfs", ev.NewTotalMFS.String()),
		)
	}
	log.Info("manual correction applied",
		zap.String("audit_id", res.Record.ID),
		zap.String("reason", res.Record.Reason),
	)
	return res, nil
}
