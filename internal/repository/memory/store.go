package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"memetic/internal/models"
	"memetic/internal/repository"
)

// Store is a process-local Repository. Ledger transactions are serialized
// and rolled back on error, which is enough to exercise the ledger's
// idempotency rules without a database.
type Store struct {
	mu sync.Mutex

	signals      map[uint64]models.Signal
	scores       map[uint64]models.AuthorScore
	applications map[string]models.ScoreApplication
	resolutions  map[string]models.SignalResolution
	manual       map[string]models.SignalManualUpdate
	daily        map[string]models.DailySignalCount
	stats        map[uint64]models.FidStats

	tokens       map[string]models.Token
	users        map[uint64]models.User
	walletAuth   map[string]models.WalletAuthorization
	walletUnauth map[string]models.WalletUnauthorization
	fidBans      map[string]models.FidBan
	walletBans   map[string]models.WalletBan
	signers      map[string]models.BackendSignerUpdate
	resolvers    map[string]models.ResolverUpdate
	failedJobs   map[string]models.FailedResolutionJob
	rejected     map[string]models.RejectedEvent
	syncStates   map[string]models.SyncState
	settings     map[string]models.SystemSetting

	conflicts int
	txCount   int
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		signals:      map[uint64]models.Signal{},
		scores:       map[uint64]models.AuthorScore{},
		applications: map[string]models.ScoreApplication{},
		resolutions:  map[string]models.SignalResolution{},
		manual:       map[string]models.SignalManualUpdate{},
		daily:        map[string]models.DailySignalCount{},
		stats:        map[uint64]models.FidStats{},
		tokens:       map[string]models.Token{},
		users:        map[uint64]models.User{},
		walletAuth:   map[string]models.WalletAuthorization{},
		walletUnauth: map[string]models.WalletUnauthorization{},
		fidBans:      map[string]models.FidBan{},
		walletBans:   map[string]models.WalletBan{},
		signers:      map[string]models.BackendSignerUpdate{},
		resolvers:    map[string]models.ResolverUpdate{},
		failedJobs:   map[string]models.FailedResolutionJob{},
		rejected:     map[string]models.RejectedEvent{},
		syncStates:   map[string]models.SyncState{},
		settings:     map[string]models.SystemSetting{},
	}
}

// FailNextCommits makes the next n ledger transactions roll back with repository.ErrConflict.
func (s *Store) FailNextCommits(n int) {
	s.mu.Lock()
	s.conflicts = n
	s.mu.Unlock()
}

// TxCount reports how many ledger transactions were started.
func (s *Store) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

type snapshot struct {
	signals      map[uint64]models.Signal
	scores       map[uint64]models.AuthorScore
	applications map[string]models.ScoreApplication
	resolutions  map[string]models.SignalResolution
	manual       map[string]models.SignalManualUpdate
	daily        map[string]models.DailySignalCount
	stats        map[uint64]models.FidStats
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		signals:      maps.Clone(s.signals),
		scores:       maps.Clone(s.scores),
		applications: maps.Clone(s.applications),
		resolutions:  maps.Clone(s.resolutions),
		manual:       maps.Clone(s.manual),
		daily:        maps.Clone(s.daily),
		stats:        maps.Clone(s.stats),
	}
}

func (s *Store) restore(snap snapshot) {
	s.signals = snap.signals
	s.scores = snap.scores
	s.applications = snap.applications
	s.resolutions = snap.resolutions
	s.manual = snap.manual
	s.daily = snap.daily
	s.stats = snap.stats
}

func (s *Store) WithLedgerTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(&ledgerTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		s.restore(snap)
		return fmt.Errorf("%w: injected serialization failure", repository.ErrConflict)
	}
	return nil
}

type ledgerTx struct {
	s *Store
}

func (t *ledgerTx) GetSignalForUpdate(_ context.Context, signalID uint64) (*models.Signal, error) {
	item, ok := t.s.signals[signalID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (t *ledgerTx) InsertSignalIgnore(_ context.Context, item *models.Signal) (bool, error) {
	if _, ok := t.s.signals[item.SignalID]; ok {
		return false, nil
	}
	item.UpdatedAt = time.Now().UTC()
	t.s.signals[item.SignalID] = *item
	return true, nil
}

func (t *ledgerTx) UpdateSignalOutcome(_ context.Context, item *models.Signal) error {
	cur, ok := t.s.signals[item.SignalID]
	if !ok {
		return nil
	}
	cur.Status = item.Status
	cur.Resolved = item.Resolved
	cur.Outcome = item.Outcome
	cur.MFSDelta = item.MFSDelta
	cur.EntryMarketCap = item.EntryMarketCap
	cur.ExitMarketCap = item.ExitMarketCap
	cur.ResolutionError = item.ResolutionError
	cur.DataSources = item.DataSources
	cur.ResolvedAt = item.ResolvedAt
	cur.ResolutionSource = item.ResolutionSource
	cur.ResolutionRef = item.ResolutionRef
	cur.UpdatedAt = time.Now().UTC()
	t.s.signals[item.SignalID] = cur
	return nil
}

func (t *ledgerTx) LockAuthorScore(_ context.Context, fid uint64) (*models.AuthorScore, error) {
	item, ok := t.s.scores[fid]
	if !ok {
		item = models.AuthorScore{FID: fid, TotalMFS: decimal.Zero, UpdatedAt: time.Now().UTC()}
		t.s.scores[fid] = item
	}
	return &item, nil
}

func (t *ledgerTx) SaveAuthorScore(_ context.Context, item *models.AuthorScore) error {
	item.UpdatedAt = time.Now().UTC()
	t.s.scores[item.FID] = *item
	return nil
}

func (t *ledgerTx) InsertScoreApplication(_ context.Context, item *models.ScoreApplication) (bool, error) {
	if _, ok := t.s.applications[item.SourceRef]; ok {
		return false, nil
	}
	item.CreatedAt = time.Now().UTC()
	t.s.applications[item.SourceRef] = *item
	return true, nil
}

func (t *ledgerTx) InsertSignalResolution(_ context.Context, item *models.SignalResolution) (bool, error) {
	if _, ok := t.s.resolutions[item.ID]; ok {
		return false, nil
	}
	item.CreatedAt = time.Now().UTC()
	t.s.resolutions[item.ID] = *item
	return true, nil
}

func (t *ledgerTx) InsertSignalManualUpdate(_ context.Context, item *models.SignalManualUpdate) (bool, error) {
	if _, ok := t.s.manual[item.ID]; ok {
		return false, nil
	}
	item.CreatedAt = time.Now().UTC()
	t.s.manual[item.ID] = *item
	return true, nil
}

func (t *ledgerTx) GetSignalManualUpdate(_ context.Context, id string) (*models.SignalManualUpdate, error) {
	item, ok := t.s.manual[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (t *ledgerTx) IncrementDailySignalCount(_ context.Context, fid uint64, day int64) error {
	id := fmt.Sprintf("%d-%d", fid, day)
	item := t.s.daily[id]
	item.ID, item.FID, item.Day = id, fid, day
	item.Count++
	t.s.daily[id] = item
	return nil
}

func (t *ledgerTx) IncrementFidStats(_ context.Context, fid uint64, d repository.FidStatsDelta) error {
	item := t.s.stats[fid]
	item.FID = fid
	item.TotalSignals += d.Total
	item.ActiveSignals += d.Active
	item.WonSignals += d.Won
	item.LostSignals += d.Lost
	item.IndeterminateSignals += d.Indeterminate
	item.UpdatedAt = time.Now().UTC()
	t.s.stats[fid] = item
	return nil
}

// --- reads ------------------------------------------------------------------

func (s *Store) GetSignal(_ context.Context, signalID uint64) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.signals[signalID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) GetAuthorScore(_ context.Context, fid uint64) (*models.AuthorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.scores[fid]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) filterSignals(params repository.ListSignalsParams) []models.Signal {
	var out []models.Signal
	for _, sig := range s.signals {
		if params.FID != nil && sig.FID != *params.FID {
			continue
		}
		if params.Status != nil && *params.Status != "" && !strings.EqualFold(sig.Status, *params.Status) {
			continue
		}
		if params.TokenAddress != nil && *params.TokenAddress != "" && !strings.EqualFold(sig.TokenAddress, *params.TokenAddress) {
			continue
		}
		out = append(out, sig)
	}
	asc := params.Asc != nil && *params.Asc
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].SignalID < out[j].SignalID
		}
		return out[i].SignalID > out[j].SignalID
	})
	return out
}

func (s *Store) ListSignals(_ context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.filterSignals(params), params.Limit, params.Offset), nil
}

func (s *Store) CountSignals(_ context.Context, params repository.ListSignalsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterSignals(params))), nil
}

func (s *Store) ListExpiredActiveSignals(_ context.Context, expiredBefore int64, limit int) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Signal
	for _, sig := range s.signals {
		if sig.Status == models.SignalStatusActive && sig.ExpiresAt <= expiredBefore {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	return page(out, limit, 0), nil
}

func matchAudit(params repository.ListAuditParams, signalID, fid uint64) bool {
	if params.SignalID != nil && signalID != *params.SignalID {
		return false
	}
	if params.FID != nil && fid != *params.FID {
		return false
	}
	return true
}

func (s *Store) filterResolutions(params repository.ListAuditParams) []models.SignalResolution {
	var out []models.SignalResolution
	for _, r := range s.resolutions {
		if matchAudit(params, r.SignalID, r.FID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) ListSignalResolutions(_ context.Context, params repository.ListAuditParams) ([]models.SignalResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.filterResolutions(params), params.Limit, params.Offset), nil
}

func (s *Store) CountSignalResolutions(_ context.Context, params repository.ListAuditParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterResolutions(params))), nil
}

func (s *Store) filterManual(params repository.ListAuditParams) []models.SignalManualUpdate {
	var out []models.SignalManualUpdate
	for _, r := range s.manual {
		if matchAudit(params, r.SignalID, r.FID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) ListSignalManualUpdates(_ context.Context, params repository.ListAuditParams) ([]models.SignalManualUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.filterManual(params), params.Limit, params.Offset), nil
}

func (s *Store) CountSignalManualUpdates(_ context.Context, params repository.ListAuditParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterManual(params))), nil
}

func (s *Store) GetFidStats(_ context.Context, fid uint64) (*models.FidStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.stats[fid]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListTopAuthors(_ context.Context, limit int) ([]models.AuthorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuthorScore, 0, len(s.scores))
	for _, v := range s.scores {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalMFS.Cmp(out[j].TotalMFS); c != 0 {
			return c > 0
		}
		return out[i].FID < out[j].FID
	})
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 500 {
		limit = 500
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
