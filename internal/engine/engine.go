package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"memetic/internal/events"
	"memetic/internal/ledger"
	"memetic/internal/marketdata"
	"memetic/internal/models"
	"memetic/internal/repository"
	"memetic/internal/scheduler"
	"memetic/internal/scoring"
)

// ErrNotExpired is returned when a scheduled job fires before expires_at.
var ErrNotExpired = fmt.Errorf("engine: signal not expired: %w", scheduler.ErrNotDue)

type MarketData interface {
	Resolve(ctx context.Context, address string, at time.Time) (marketdata.Result, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, signalID uint64, dueAt time.Time) (bool, error)
}

// ProfileEnricher refreshes an author's profile; failures are not fatal.
type ProfileEnricher interface {
	EnsureProfile(ctx context.Context, fid uint64) error
}

type TokenStore interface {
	UpsertToken(ctx context.Context, item *models.Token) error
}

type Observer interface {
	ObserveResolution(source, outcome string, resolutionError bool)
}

// Engine drives signals from creation to resolution. Both the scheduled
// and the oracle path go through resolve.
type Engine struct {
	Ledger   *ledger.Ledger
	Market   MarketData
	Policy   scoring.Policy
	Queue    Enqueuer
	Records  repository.ChainRecordRepository
	Tokens   TokenStore
	Profiles ProfileEnricher
	Logger   *zap.Logger
	Observer Observer

	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) policy() scoring.Policy {
	if e.Policy == nil {
		return scoring.FixedPolicy{Win: 10, Loss: -5}
	}
	return e.Policy
}

// ExpiresAt is created_at + duration_days*86400.
func ExpiresAt(createdAt int64, durationDays uint32) int64 {
	return createdAt + int64(durationDays)*models.SecondsPerDay
}

// HandleSignalCreated records a new signal with its entry market cap and
// schedules its resolution. Redelivery only re-ensures the schedule.
func (e *Engine) HandleSignalCreated(ctx context.Context, ev events.SignalCreated) (bool, error) {
	log := e.log().With(zap.Uint64("signal_id", ev.SignalID), zap.Uint64("fid", ev.FID))

	expiresAt := ExpiresAt(ev.CreatedAt, ev.DurationDays)
	if ev.ExpiresAt != 0 && ev.ExpiresAt != expiresAt {
		log.Warn("event expiry disagrees with duration, using derived value",
			zap.Int64("event_expires_at", ev.ExpiresAt),
			zap.Int64("expires_at", expiresAt),
		)
	}

	existing, err := e.Ledger.Repo.GetSignal(ctx, ev.SignalID)
	if err != nil {
		return false, fmt.Errorf("lookup signal %d: %w", ev.SignalID, err)
	}
	if existing != nil {
		if existing.Status == models.SignalStatusActive {
			if _, err := e.Queue.Enqueue(ctx, ev.SignalID, time.Unix(existing.ExpiresAt, 0)); err != nil {
				return false, fmt.Errorf("enqueue signal %d: %w", ev.SignalID, err)
			}
		}
		return false, nil
	}

	res, err := e.Market.Resolve(ctx, ev.Token, time.Unix(ev.CreatedAt, 0))
	if err != nil {
		return false, fmt.Errorf("entry market cap for signal %d: %w", ev.SignalID, err)
	}
	if res.ResolutionError {
		log.Warn("entry market cap unavailable, signal will resolve indeterminate",
			zap.String("token", ev.Token),
			zap.String("attempt_id", res.AttemptID),
		)
	}
	e.saveToken(ctx, res)

	sig := &models.Signal{
		SignalID:        ev.SignalID,
		FID:             ev.FID,
		TokenAddress:    ev.Token,
		Direction:       ev.Direction,
		DurationDays:    ev.DurationDays,
		EntryMarketCap:  res.MarketCap,
		CreatedAt:       ev.CreatedAt,
		ExpiresAt:       expiresAt,
		ResolutionError: res.ResolutionError,
		DataSources:     lookupJSON(lookupEntry, res),
		BlockNumber:     ev.BlockNumber,
		TransactionHash: ev.TxHash,
	}
	created, err := e.Ledger.CreateSignal(ctx, sig, ledger.Ref{
		Block:    ev.BlockNumber,
		TxHash:   ev.TxHash,
		LogIndex: ev.LogIndex,
		SignalID: ev.SignalID,
		Kind:     ledger.KindCreate,
	})
	if err != nil {
		return false, err
	}
	if _, err := e.Queue.Enqueue(ctx, ev.SignalID, time.Unix(expiresAt, 0)); err != nil {
		return created, fmt.Errorf("enqueue signal %d: %w", ev.SignalID, err)
	}
	if created {
		log.Info("signal created",
			zap.String("token", ev.Token),
			zap.String("direction", models.DirectionLabel(ev.Direction)),
			zap.Uint32("duration_days", ev.DurationDays),
			zap.String("entry_market_cap", res.MarketCap.String()),
			zap.String("market_source", res.Source),
		)
		if e.Profiles != nil {
			if err := e.Profiles.EnsureProfile(ctx, ev.FID); err != nil {
				log.Debug("profile enrichment failed", zap.Error(err))
			}
		}
	}
	return created, nil
}

func (e *Engine) saveToken(ctx context.Context, res marketdata.Result) {
	if e.Tokens == nil || res.Token.Source == marketdata.PlaceholderSource {
		return
	}
	categories, _ := json.Marshal(res.Token.Categories)
	images, _ := json.Marshal(res.Token.Images)
	quote, _ := json.Marshal(res.Quote)
	token := &models.Token{
		Address:     res.Token.Address,
		Source:      res.Token.Source,
		ProviderID:  res.Token.ProviderID,
		Name:        res.Token.Name,
		Symbol:      res.Token.Symbol,
		Decimals:    res.Token.Decimals,
		Categories:  datatypes.JSON(categories),
		Description: res.Token.Description,
		Images:      datatypes.JSON(images),
		MarketData:  datatypes.JSON(quote),
	}
	if err := e.Tokens.UpsertToken(ctx, token); err != nil {
		e.log().Warn("token upsert failed", zap.String("token", res.Token.Address), zap.Error(err))
	}
}

// ResolveScheduled is the job body of the resolution scheduler.
func (e *Engine) ResolveScheduled(ctx context.Context, signalID uint64) error {
	sig, err := e.Ledger.GetSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if sig.Status != models.SignalStatusActive {
		return nil
	}
	if e.now().Unix() < sig.ExpiresAt {
		return ErrNotExpired
	}
	_, _, err = e.resolve(ctx, sig, nil, ledger.Ref{SignalID: signalID, Kind: ledger.KindResolve}, models.ResolutionSourceScheduled)
	return err
}

// ResolveFromChain applies an oracle resolution. The chain delta is authoritative.
func (e *Engine) ResolveFromChain(ctx context.Context, ev events.SignalResolved) (ledger.Outcome, bool, error) {
	sig, err := e.Ledger.GetSignal(ctx, ev.SignalID)
	if err != nil {
		return ledger.Outcome{}, false, err
	}
	delta := ev.MFSDelta
	out, applied, err := e.resolve(ctx, sig, &delta, ledger.Ref{
		Block:    ev.BlockNumber,
		TxHash:   ev.TxHash,
		LogIndex: ev.LogIndex,
		SignalID: ev.SignalID,
		Kind:     ledger.KindResolve,
	}, models.ResolutionSourceChain)
	if err != nil {
		return out, applied, err
	}
	switch {
	case applied && !ev.NewTotalMFS.IsZero() && !out.TotalMFS.Equal(ev.NewTotalMFS):
		e.log().Warn("ledger total disagrees with chain",
			zap.Uint64("signal_id", ev.SignalID),
			zap.Uint64("fid", out.FID),
			zap.String("total_mfs", out.TotalMFS.String()),
			zap.String("chain_total_mfs", ev.NewTotalMFS.String()),
		)
	case !applied && out.Delta != ev.MFSDelta:
		// Already resolved; the stored delta stands.
		e.log().Warn("chain delta disagrees with stored resolution",
			zap.Uint64("signal_id", ev.SignalID),
			zap.Uint64("fid", out.FID),
			zap.Int64("mfs_delta", out.Delta),
			zap.Int64("chain_mfs_delta", ev.MFSDelta),
			zap.String("resolution_source", sig.ResolutionSource),
		)
	}
	return out, applied, nil
}

const (
	lookupEntry = "entry"
	lookupExit  = "exit"
)

// sourceLookup is one market data lookup kept on the signal. The ledger
// appends the exit lookup to the entry one.
type sourceLookup struct {
	Phase           string               `json:"phase"`
	AttemptID       string               `json:"attempt_id"`
	Source          string               `json:"source"`
	ResolutionError bool                 `json:"resolution_error"`
	Attempts        []marketdata.Attempt `json:"attempts"`
}

func lookupJSON(phase string, res marketdata.Result) datatypes.JSON {
	raw, _ := json.Marshal([]sourceLookup{{
		Phase:           phase,
		AttemptID:       res.AttemptID,
		Source:          res.Source,
		ResolutionError: res.ResolutionError,
		Attempts:        res.Attempts,
	}})
	return datatypes.JSON(raw)
}

func (e *Engine) resolve(ctx context.Context, sig *models.Signal, chainDelta *int64, ref ledger.Ref, source string) (ledger.Outcome, bool, error) {
	if sig.Status != models.SignalStatusActive {
		return e.Ledger.ResolveSignal(ctx, sig.SignalID, ledger.Resolution{}, ref)
	}

	res, err := e.Market.Resolve(ctx, sig.TokenAddress, time.Unix(sig.ExpiresAt, 0))
	if err != nil {
		return ledger.Outcome{}, false, fmt.Errorf("exit market cap for signal %d: %w", sig.SignalID, err)
	}

	exit := res.MarketCap
	outcome := models.OutcomeIndeterminate
	if !res.ResolutionError {
		outcome = scoring.DecideOutcome(sig.IsUp(), sig.EntryMarketCap, &exit)
	}

	var delta int64
	if chainDelta != nil {
		delta = *chainDelta
	} else {
		delta = e.policy().Delta(scoring.Input{
			Up:             sig.IsUp(),
			Outcome:        outcome,
			EntryMarketCap: sig.EntryMarketCap,
			ExitMarketCap:  exit,
			DurationDays:   sig.DurationDays,
		})
	}

	out, applied, err := e.Ledger.ResolveSignal(ctx, sig.SignalID, ledger.Resolution{
		Outcome:         outcome,
		Delta:           delta,
		ExitMarketCap:   &exit,
		ResolutionError: res.ResolutionError || outcome == models.OutcomeIndeterminate,
		DataSources:     lookupJSON(lookupExit, res),
		Source:          source,
		ResolvedAt:      e.now().UTC(),
	}, ref)
	if err != nil {
		return out, applied, err
	}
	if applied && e.Observer != nil {
		e.Observer.ObserveResolution(source, out.Outcome, out.ResolutionError)
	}
	return out, applied, nil
}

// RecordChainEvent stores permission and admin events. Ids follow the
// chain natural keys so redelivery is ignored.
func (e *Engine) RecordChainEvent(ctx context.Context, ev events.Event) (bool, error) {
	if e.Records == nil {
		return false, errors.New("engine: chain record store not configured")
	}
	switch v := ev.(type) {
	case events.WalletAuthorized:
		return e.Records.InsertWalletAuthorization(ctx, &models.WalletAuthorization{
			ID:              fmt.Sprintf("%d-%s", v.FID, v.Wallet),
			FID:             v.FID,
			Wallet:          v.Wallet,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	case events.WalletUnauthorized:
		return e.Records.InsertWalletUnauthorization(ctx, &models.WalletUnauthorization{
			ID:              fmt.Sprintf("%s-%d", v.Wallet, v.BlockNumber),
			FID:             v.FID,
			Wallet:          v.Wallet,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	case events.FidBanChanged:
		return e.Records.InsertFidBan(ctx, &models.FidBan{
			ID:              fmt.Sprintf("%d-%d", v.FID, v.BlockNumber),
			Banned:          v.Banned,
			FID:             v.FID,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	case events.WalletBanChanged:
		return e.Records.InsertWalletBan(ctx, &models.WalletBan{
			ID:              fmt.Sprintf("%s-%d", v.Wallet, v.BlockNumber),
			Banned:          v.Banned,
			Wallet:          v.Wallet,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	case events.BackendSignerUpdated:
		return e.Records.InsertBackendSignerUpdate(ctx, &models.BackendSignerUpdate{
			ID:              fmt.Sprintf("%d-%d", v.BlockNumber, v.TxIndex),
			OldSigner:       v.OldSigner,
			NewSigner:       v.NewSigner,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	case events.ResolverUpdated:
		return e.Records.InsertResolverUpdate(ctx, &models.ResolverUpdate{
			ID:              fmt.Sprintf("%d-%d", v.BlockNumber, v.TxIndex),
			OldResolver:     v.OldResolver,
			NewResolver:     v.NewResolver,
			BlockNumber:     v.BlockNumber,
			TransactionHash: v.TxHash,
		})
	}
	return false, fmt.Errorf("%w: %s is not a chain record", events.ErrUnknownKind, ev.EventKind())
}
