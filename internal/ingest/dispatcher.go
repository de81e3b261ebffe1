package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memetic/internal/correction"
	"memetic/internal/engine"
	"memetic/internal/events"
	"memetic/internal/ledger"
	"memetic/internal/models"
)

const (
	StatusApplied   = "applied"
	StatusDuplicate = "duplicate"
	StatusInvalid   = "invalid"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusRejected  = "rejected"
)

// rejections are ledger answers that stay the same on every redelivery.
var rejections = []error{
	ledger.ErrSignalNotFound,
	ledger.ErrSignalNotYetResolved,
	ledger.ErrAlreadyCorrected,
	ledger.ErrReasonRequired,
	ledger.ErrInvalidSignal,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type SyncStore interface {
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
}

type RejectionStore interface {
	InsertRejectedEvent(ctx context.Context, item *models.RejectedEvent) (bool, error)
}

type Observer interface {
	ObserveEvent(kind, result string)
}

// Result reports what happened to one event of a batch.
type Result struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Dispatcher applies chain events one at a time per chain, in delivery
// order. Different chains proceed independently.
type Dispatcher struct {
	Engine      *engine.Engine
	Corrections *correction.Handler
	Sync        SyncStore
	Rejections  RejectionStore
	Logger      *zap.Logger
	Observer    Observer

	mu     sync.Mutex
	chains map[uint64]*sync.Mutex
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) chainLock(chainID uint64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chains == nil {
		d.chains = make(map[uint64]*sync.Mutex)
	}
	m, ok := d.chains[chainID]
	if !ok {
		m = &sync.Mutex{}
		d.chains[chainID] = m
	}
	return m
}

// SyncScope names the sync_state row of a chain.
func SyncScope(chainID uint64) string {
	return "chain:" + strconv.FormatUint(chainID, 10)
}

// Dispatch applies a single event under its chain lock.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) (string, error) {
	lock := d.chainLock(ev.EventMeta().ChainID)
	lock.Lock()
	defer lock.Unlock()
	status, err := d.apply(ctx, ev)
	d.observe(ev.EventKind(), status)
	if status == StatusRejected {
		d.reject(ctx, ev, err)
		err = nil
	}
	if err != nil {
		d.saveCursor(ctx, ev.EventMeta().ChainID, nil, err)
		return status, err
	}
	m := ev.EventMeta()
	d.saveCursor(ctx, m.ChainID, &m, nil)
	return status, nil
}

// DispatchBatch decodes and applies envelopes. Within a chain, the first
// failure stops that chain's remaining events so ordering is preserved;
// the producer redelivers them. Rejected events are recorded and passed.
func (d *Dispatcher) DispatchBatch(ctx context.Context, envs []events.Envelope) []Result {
	results := make([]Result, len(envs))
	byChain := map[uint64][]int{}
	var order []uint64
	decoded := make([]events.Event, len(envs))

	for i, env := range envs {
		results[i] = Result{
			Index:       i,
			Kind:        env.Kind,
			ChainID:     env.ChainID,
			BlockNumber: env.BlockNumber,
			LogIndex:    env.LogIndex,
		}
		ev, err := events.Decode(env)
		if err != nil {
			results[i].Status = StatusInvalid
			results[i].Error = err.Error()
			d.observe(env.Kind, StatusInvalid)
			continue
		}
		decoded[i] = ev
		if _, ok := byChain[env.ChainID]; !ok {
			order = append(order, env.ChainID)
		}
		byChain[env.ChainID] = append(byChain[env.ChainID], i)
	}

	var g errgroup.Group
	for _, chainID := range order {
		idxs := byChain[chainID]
		g.Go(func() error {
			d.runChain(ctx, chainID, idxs, decoded, results)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) runChain(ctx context.Context, chainID uint64, idxs []int, decoded []events.Event, results []Result) {
	lock := d.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	var last *events.Meta
	for n, i := range idxs {
		ev := decoded[i]
		status, err := d.apply(ctx, ev)
		results[i].Status = status
		d.observe(ev.EventKind(), status)
		if status == StatusRejected {
			results[i].Error = err.Error()
			d.reject(ctx, ev, err)
			err = nil
		}
		if err != nil {
			results[i].Error = err.Error()
			d.log().Warn("event failed, stopping chain batch",
				zap.Uint64("chain_id", chainID),
				zap.String("kind", ev.EventKind()),
				zap.Uint64("block", ev.EventMeta().BlockNumber),
				zap.Uint("log_index", ev.EventMeta().LogIndex),
				zap.Error(err),
			)
			for _, rest := range idxs[n+1:] {
				results[rest].Status = StatusSkipped
				d.observe(decoded[rest].EventKind(), StatusSkipped)
			}
			d.saveCursor(ctx, chainID, last, err)
			return
		}
		m := ev.EventMeta()
		last = &m
	}
	d.saveCursor(ctx, chainID, last, nil)
}

func (d *Dispatcher) apply(ctx context.Context, ev events.Event) (string, error) {
	if d.Engine == nil {
		return StatusFailed, errors.New("ingest: engine not configured")
	}
	var (
		applied bool
		err     error
	)
	switch v := ev.(type) {
	case events.SignalCreated:
		applied, err = d.Engine.HandleSignalCreated(ctx, v)
	case events.SignalResolved:
		_, applied, err = d.Engine.ResolveFromChain(ctx, v)
	case events.SignalManuallyUpdated:
		if d.Corrections == nil {
			return StatusFailed, errors.New("ingest: correction handler not configured")
		}
		var res ledger.Correction
		res, err = d.Corrections.Apply(ctx, v)
		applied = !res.Replayed
	default:
		applied, err = d.Engine.RecordChainEvent(ctx, ev)
	}
	if err != nil {
		err = fmt.Errorf("%s at block %d: %w", ev.EventKind(), ev.EventMeta().BlockNumber, err)
		if isRejection(err) {
			return StatusRejected, err
		}
		return StatusFailed, err
	}
	if !applied {
		return StatusDuplicate, nil
	}
	return StatusApplied, nil
}

func (d *Dispatcher) reject(ctx context.Context, ev events.Event, reason error) {
	m := ev.EventMeta()
	d.log().Warn("event rejected by ledger",
		zap.Uint64("chain_id", m.ChainID),
		zap.String("kind", ev.EventKind()),
		zap.Uint64("block", m.BlockNumber),
		zap.Uint("log_index", m.LogIndex),
		zap.Error(reason),
	)
	if d.Rejections == nil {
		return
	}
	item := &models.RejectedEvent{
		ID:              fmt.Sprintf("%d-%d-%d", m.ChainID, m.BlockNumber, m.LogIndex),
		Kind:            ev.EventKind(),
		ChainID:         m.ChainID,
		BlockNumber:     m.BlockNumber,
		LogIndex:        m.LogIndex,
		TransactionHash: m.TxHash,
		SignalID:        signalIDOf(ev),
		Reason:          reason.Error(),
	}
	if _, err := d.Rejections.InsertRejectedEvent(ctx, item); err != nil {
		d.log().Warn("record rejected event failed", zap.String("id", item.ID), zap.Error(err))
	}
}

func signalIDOf(ev events.Event) uint64 {
	switch v := ev.(type) {
	case events.SignalCreated:
		return v.SignalID
	case events.SignalResolved:
		return v.SignalID
	case events.SignalManuallyUpdated:
		return v.SignalID
	}
	return 0
}

// saveCursor advances the chain cursor to last (never backwards) and
// records the outcome of the attempt.
func (d *Dispatcher) saveCursor(ctx context.Context, chainID uint64, last *events.Meta, failure error) {
	if d.Sync == nil {
		return
	}
	scope := SyncScope(chainID)
	state := &models.SyncState{Scope: scope}
	prev, err := d.Sync.GetSyncState(ctx, scope)
	if err != nil {
		d.log().Warn("load sync state failed", zap.String("scope", scope), zap.Error(err))
	} else if prev != nil {
		*state = *prev
	}
	if last != nil && (last.BlockNumber > state.LastBlock ||
		(last.BlockNumber == state.LastBlock && last.LogIndex >= state.LastLogIndex)) {
		state.LastBlock = last.BlockNumber
		state.LastLogIndex = last.LogIndex
	}
	now := time.Now().UTC()
	state.LastAttemptAt = &now
	if failure != nil {
		msg := failure.Error()
		state.LastError = &msg
	} else {
		state.LastError = nil
		state.LastSuccessAt = &now
	}
	if err := d.Sync.SaveSyncState(ctx, state); err != nil {
		d.log().Warn("save sync state failed", zap.String("scope", scope), zap.Error(err))
	}
}

func (d *Dispatcher) observe(kind, status string) {
	if d.Observer != nil {
		d.Observer.ObserveEvent(kind, status)
	}
}

// Cursor returns the last applied position of a chain, zero when unknown.
func (d *Dispatcher) Cursor(ctx context.Context, chainID uint64) (uint64, uint, error) {
	if d.Sync == nil {
		return 0, 0, nil
	}
	state, err := d.Sync.GetSyncState(ctx, SyncScope(chainID))
	if err != nil || state == nil {
		return 0, 0, err
	}
	return state.LastBlock, state.LastLogIndex, nil
}
