package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"memetic/internal/models"
	"memetic/internal/repository"
)

func (s *Store) InsertWalletAuthorization(ctx context.Context, item *models.WalletAuthorization) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) InsertWalletUnauthorization(ctx context.Context, item *models.WalletUnauthorization) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) InsertFidBan(ctx context.Context, item *models.FidBan) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) InsertWalletBan(ctx context.Context, item *models.WalletBan) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) InsertBackendSignerUpdate(ctx context.Context, item *models.BackendSignerUpdate) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) InsertResolverUpdate(ctx context.Context, item *models.ResolverUpdate) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

// --- rejected events ----------------------------------------------------------

func (s *Store) InsertRejectedEvent(ctx context.Context, item *models.RejectedEvent) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	return insertIgnore(s.db.WithContext(ctx), item)
}

func (s *Store) rejectedQuery(ctx context.Context, params repository.ListRejectedEventsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.RejectedEvent{})
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.SignalID != nil {
		query = query.Where("signal_id = ?", *params.SignalID)
	}
	return query
}

func (s *Store) ListRejectedEvents(ctx context.Context, params repository.ListRejectedEventsParams) ([]models.RejectedEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.rejectedQuery(ctx, params), "", params.Asc, "created_at")
	var items []models.RejectedEvent
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountRejectedEvents(ctx context.Context, params repository.ListRejectedEventsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.rejectedQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- failed resolution jobs -------------------------------------------------

func (s *Store) InsertFailedJob(ctx context.Context, item *models.FailedResolutionJob) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetFailedJob(ctx context.Context, id string) (*models.FailedResolutionJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.FailedResolutionJob
	err := s.db.WithContext(ctx).Model(&models.FailedResolutionJob{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListFailedJobs(ctx context.Context, params repository.ListFailedJobsParams) ([]models.FailedResolutionJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FailedResolutionJob{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "failed_at")
	var items []models.FailedResolutionJob
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountFailedJobs(ctx context.Context, params repository.ListFailedJobsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FailedResolutionJob{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkFailedJobRequeued(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.FailedResolutionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.FailedJobStatusRequeued,
			"requeued_at": at,
		}).Error
}
