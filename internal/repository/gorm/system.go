package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memetic/internal/models"
	"memetic/internal/repository"
)

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

const latestBansSQL = `SELECT COUNT(*) FROM (
	SELECT DISTINCT ON (%s) banned FROM %s ORDER BY %s, block_number DESC
) latest WHERE latest.banned`

func (s *Store) GetSystemState(ctx context.Context, now time.Time, day int64) (repository.SystemState, error) {
	state := repository.SystemState{Day: day, GeneratedAt: now.UTC()}
	if s == nil || s.db == nil {
		return state, nil
	}
	db := s.db.WithContext(ctx)
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&state.TotalSignals, db.Model(&models.Signal{})},
		{&state.ActiveSignals, db.Model(&models.Signal{}).Where("status = ?", models.SignalStatusActive)},
		{&state.ResolvedSignals, db.Model(&models.Signal{}).Where("status = ?", models.SignalStatusResolved)},
		{&state.CorrectedSignals, db.Model(&models.Signal{}).Where("status = ?", models.SignalStatusManuallyUpdated)},
		{&state.SignalsLast24h, db.Model(&models.Signal{}).Where("created_at >= ?", now.Unix()-models.SecondsPerDay)},
		{&state.TotalAuthors, db.Model(&models.FidStats{})},
		{&state.TotalUsers, db.Model(&models.User{})},
		{&state.ParkedJobs, db.Model(&models.FailedResolutionJob{}).Where("status = ?", models.FailedJobStatusParked)},
		{&state.RejectedEvents, db.Model(&models.RejectedEvent{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return state, err
		}
	}
	if err := db.Model(&models.DailySignalCount{}).
		Where("day = ?", day).
		Select("COALESCE(SUM(count), 0)").
		Scan(&state.SignalsToday).Error; err != nil {
		return state, err
	}
	if err := db.Raw(fmt.Sprintf(latestBansSQL, "fid", "fid_bans", "fid")).Scan(&state.BannedFids).Error; err != nil {
		return state, err
	}
	if err := db.Raw(fmt.Sprintf(latestBansSQL, "wallet", "wallet_bans", "wallet")).Scan(&state.BannedWallets).Error; err != nil {
		return state, err
	}
	return state, nil
}
