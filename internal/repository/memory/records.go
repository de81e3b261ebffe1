package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"memetic/internal/models"
	"memetic/internal/repository"
)

func (s *Store) InsertWalletAuthorization(_ context.Context, item *models.WalletAuthorization) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.walletAuth, item.ID, *item), nil
}

func (s *Store) InsertWalletUnauthorization(_ context.Context, item *models.WalletUnauthorization) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.walletUnauth, item.ID, *item), nil
}

func (s *Store) InsertFidBan(_ context.Context, item *models.FidBan) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.fidBans, fmt.Sprintf("%s/%t", item.ID, item.Banned), *item), nil
}

func (s *Store) InsertWalletBan(_ context.Context, item *models.WalletBan) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.walletBans, fmt.Sprintf("%s/%t", item.ID, item.Banned), *item), nil
}

func (s *Store) InsertBackendSignerUpdate(_ context.Context, item *models.BackendSignerUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.signers, item.ID, *item), nil
}

func (s *Store) InsertResolverUpdate(_ context.Context, item *models.ResolverUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOnce(s.resolvers, item.ID, *item), nil
}

func insertOnce[V any](m map[string]V, key string, v V) bool {
	if _, ok := m[key]; ok {
		return false
	}
	m[key] = v
	return true
}

// --- failed resolution jobs -------------------------------------------------

func (s *Store) InsertFailedJob(_ context.Context, item *models.FailedResolutionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.failedJobs[item.ID]; ok {
		return fmt.Errorf("%w: failed job %s exists", repository.ErrConflict, item.ID)
	}
	s.failedJobs[item.ID] = *item
	return nil
}

func (s *Store) GetFailedJob(_ context.Context, id string) (*models.FailedResolutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.failedJobs[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) filterFailedJobs(params repository.ListFailedJobsParams) []models.FailedResolutionJob {
	var out []models.FailedResolutionJob
	for _, j := range s.failedJobs {
		if params.Status != nil && strings.TrimSpace(*params.Status) != "" && j.Status != strings.TrimSpace(*params.Status) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FailedAt.After(out[k].FailedAt) })
	return out
}

func (s *Store) ListFailedJobs(_ context.Context, params repository.ListFailedJobsParams) ([]models.FailedResolutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.filterFailedJobs(params), params.Limit, params.Offset), nil
}

func (s *Store) CountFailedJobs(_ context.Context, params repository.ListFailedJobsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterFailedJobs(params))), nil
}

func (s *Store) MarkFailedJobRequeued(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.failedJobs[id]
	if !ok {
		return nil
	}
	item.Status = models.FailedJobStatusRequeued
	item.RequeuedAt = &at
	s.failedJobs[id] = item
	return nil
}

// --- rejected events ----------------------------------------------------------

func (s *Store) InsertRejectedEvent(_ context.Context, item *models.RejectedEvent) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return insertOnce(s.rejected, item.ID, *item), nil
}

func (s *Store) filterRejected(params repository.ListRejectedEventsParams) []models.RejectedEvent {
	var out []models.RejectedEvent
	for _, e := range s.rejected {
		if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" && e.Kind != strings.TrimSpace(*params.Kind) {
			continue
		}
		if params.SignalID != nil && e.SignalID != *params.SignalID {
			continue
		}
		out = append(out, e)
	}
	asc := params.Asc != nil && *params.Asc
	sort.Slice(out, func(i, k int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

func (s *Store) ListRejectedEvents(_ context.Context, params repository.ListRejectedEventsParams) ([]models.RejectedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.filterRejected(params), params.Limit, params.Offset), nil
}

func (s *Store) CountRejectedEvents(_ context.Context, params repository.ListRejectedEventsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterRejected(params))), nil
}

// --- tokens, users, sync state ---------------------------------------------

func (s *Store) UpsertToken(_ context.Context, item *models.Token) error {
	if item == nil {
		return nil
	}
	item.Address = strings.ToLower(strings.TrimSpace(item.Address))
	if item.Address == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if cur, ok := s.tokens[item.Address]; ok {
		item.CreatedAt = cur.CreatedAt
	} else {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.tokens[item.Address] = *item
	return nil
}

func (s *Store) GetToken(_ context.Context, address string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.tokens[strings.ToLower(strings.TrimSpace(address))]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertUsers(_ context.Context, items []models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range items {
		if cur, ok := s.users[u.FID]; ok {
			u.CreatedAt = cur.CreatedAt
		} else {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
		s.users[u.FID] = u
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, fid uint64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.users[fid]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListStaleAuthorFIDs(_ context.Context, updatedBefore time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fids []uint64
	for fid := range s.stats {
		u, ok := s.users[fid]
		if !ok || u.UpdatedAt.Before(updatedBefore) {
			fids = append(fids, fid)
		}
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
	if limit <= 0 {
		limit = 100
	}
	return page(fids, limit, 0), nil
}

func (s *Store) GetSyncState(_ context.Context, scope string) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.syncStates[scope]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) SaveSyncState(_ context.Context, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncStates[state.Scope] = *state
	return nil
}

// --- settings & system state -----------------------------------------------

func (s *Store) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if cur, ok := s.settings[item.Key]; ok {
		item.ID = cur.ID
		item.CreatedAt = cur.CreatedAt
	} else {
		item.ID = uint64(len(s.settings) + 1)
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) GetSystemState(_ context.Context, now time.Time, day int64) (repository.SystemState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := repository.SystemState{Day: day, GeneratedAt: now.UTC()}
	for _, sig := range s.signals {
		state.TotalSignals++
		switch sig.Status {
		case models.SignalStatusActive:
			state.ActiveSignals++
		case models.SignalStatusResolved:
			state.ResolvedSignals++
		case models.SignalStatusManuallyUpdated:
			state.CorrectedSignals++
		}
		if sig.CreatedAt >= now.Unix()-models.SecondsPerDay {
			state.SignalsLast24h++
		}
	}
	for _, d := range s.daily {
		if d.Day == day {
			state.SignalsToday += d.Count
		}
	}
	state.TotalAuthors = int64(len(s.stats))
	state.TotalUsers = int64(len(s.users))
	for _, j := range s.failedJobs {
		if j.Status == models.FailedJobStatusParked {
			state.ParkedJobs++
		}
	}
	state.RejectedEvents = int64(len(s.rejected))

	fidLatest := map[uint64]models.FidBan{}
	for _, b := range s.fidBans {
		if cur, ok := fidLatest[b.FID]; !ok || b.BlockNumber > cur.BlockNumber {
			fidLatest[b.FID] = b
		}
	}
	for _, b := range fidLatest {
		if b.Banned {
			state.BannedFids++
		}
	}
	walletLatest := map[string]models.WalletBan{}
	for _, b := range s.walletBans {
		if cur, ok := walletLatest[b.Wallet]; !ok || b.BlockNumber > cur.BlockNumber {
			walletLatest[b.Wallet] = b
		}
	}
	for _, b := range walletLatest {
		if b.Banned {
			state.BannedWallets++
		}
	}
	return state, nil
}
