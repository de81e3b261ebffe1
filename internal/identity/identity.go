package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"memetic/internal/client/neynar"
	"memetic/internal/models"
)

type UserLookup interface {
	UsersByFID(ctx context.Context, fids []uint64) ([]neynar.User, error)
}

type Store interface {
	UpsertUsers(ctx context.Context, items []models.User) error
	GetUser(ctx context.Context, fid uint64) (*models.User, error)
	ListStaleAuthorFIDs(ctx context.Context, updatedBefore time.Time, limit int) ([]uint64, error)
}

// Service keeps author profiles fresh. It is best-effort: callers log
// its errors and carry on.
type Service struct {
	Lookup UserLookup
	Store  Store
	Logger *zap.Logger

	MaxAge       time.Duration
	RefreshBatch int
	Timeout      time.Duration

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxAge() time.Duration {
	if s.MaxAge <= 0 {
		return 24 * time.Hour
	}
	return s.MaxAge
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// EnsureProfile fetches the author's profile unless a fresh one is stored.
func (s *Service) EnsureProfile(ctx context.Context, fid uint64) error {
	if s == nil || s.Lookup == nil || s.Store == nil || fid == 0 {
		return nil
	}
	existing, err := s.Store.GetUser(ctx, fid)
	if err != nil {
		return err
	}
	if existing != nil && existing.UpdatedAt.After(s.now().Add(-s.maxAge())) {
		return nil
	}
	_, err = s.fetch(ctx, []uint64{fid})
	return err
}

// RefreshStale refreshes authors with no profile or an outdated one.
func (s *Service) RefreshStale(ctx context.Context) (int, error) {
	if s == nil || s.Lookup == nil || s.Store == nil {
		return 0, nil
	}
	limit := s.RefreshBatch
	if limit <= 0 {
		limit = neynar.MaxBulkFIDs
	}
	fids, err := s.Store.ListStaleAuthorFIDs(ctx, s.now().Add(-s.maxAge()), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale authors: %w", err)
	}
	total := 0
	var errs []error
	for start := 0; start < len(fids); start += neynar.MaxBulkFIDs {
		end := min(start+neynar.MaxBulkFIDs, len(fids))
		n, err := s.fetch(ctx, fids[start:end])
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		s.log().Info("author profiles refreshed", zap.Int("updated", total), zap.Int("stale", len(fids)))
	}
	return total, errors.Join(errs...)
}

func (s *Service) fetch(ctx context.Context, fids []uint64) (int, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	users, err := s.Lookup.UsersByFID(ctx, fids)
	if err != nil {
		return 0, fmt.Errorf("lookup %d profiles: %w", len(fids), err)
	}
	if len(users) == 0 {
		return 0, nil
	}
	rows := make([]models.User, 0, len(users))
	for _, u := range users {
		rows = append(rows, ToModel(u))
	}
	if err := s.Store.UpsertUsers(ctx, rows); err != nil {
		return 0, fmt.Errorf("store profiles: %w", err)
	}
	return len(rows), nil
}

func ToModel(u neynar.User) models.User {
	verified := make([]string, 0, len(u.VerifiedAddresses.EthAddresses))
	for _, a := range u.VerifiedAddresses.EthAddresses {
		verified = append(verified, strings.ToLower(a))
	}
	verifiedJSON, _ := json.Marshal(verified)
	return models.User{
		FID:               u.FID,
		Username:          u.Username,
		DisplayName:       u.DisplayName,
		PfpURL:            u.PfpURL,
		Bio:               u.Profile.Bio.Text,
		CustodyAddress:    strings.ToLower(u.CustodyAddress),
		VerifiedAddresses: datatypes.JSON(verifiedJSON),
		FollowerCount:     u.FollowerCount,
		FollowingCount:    u.FollowingCount,
		RawJSON:           datatypes.JSON(u.Raw),
	}
}
