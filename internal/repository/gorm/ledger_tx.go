package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memetic/internal/models"
	"memetic/internal/repository"
)

func (s *Store) WithLedgerTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.InTx(ctx, func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx})
	})
}

type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) GetSignalForUpdate(ctx context.Context, signalID uint64) (*models.Signal, error) {
	var item models.Signal
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("signal_id = ?", signalID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *ledgerTx) InsertSignalIgnore(ctx context.Context, item *models.Signal) (bool, error) {
	if item == nil {
		return false, nil
	}
	return insertIgnore(t.db.WithContext(ctx), item)
}

func (t *ledgerTx) UpdateSignalOutcome(ctx context.Context, item *models.Signal) error {
	if item == nil {
		return nil
	}
	item.UpdatedAt = time.Now().UTC()
	return t.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("signal_id = ?", item.SignalID).
		Select(
			"status",
			"resolved",
			"outcome",
			"mfs_delta",
			"entry_market_cap",
			"exit_market_cap",
			"resolution_error",
			"data_sources",
			"resolved_at",
			"resolution_source",
			"resolution_ref",
			"updated_at",
		).
		Updates(item).Error
}

// LockAuthorScore creates the ledger row on first use, then takes the row lock.
func (t *ledgerTx) LockAuthorScore(ctx context.Context, fid uint64) (*models.AuthorScore, error) {
	seed := models.AuthorScore{FID: fid, TotalMFS: decimal.Zero, UpdatedAt: time.Now().UTC()}
	if _, err := insertIgnore(t.db.WithContext(ctx), &seed); err != nil {
		return nil, err
	}
	var item models.AuthorScore
	if err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fid = ?", fid).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *ledgerTx) SaveAuthorScore(ctx context.Context, item *models.AuthorScore) error {
	if item == nil {
		return nil
	}
	item.UpdatedAt = time.Now().UTC()
	return t.db.WithContext(ctx).
		Model(&models.AuthorScore{}).
		Where("fid = ?", item.FID).
		Updates(map[string]any{
			"total_mfs":          item.TotalMFS,
			"last_updated_block": item.LastUpdatedBlock,
			"last_updated_tx":    item.LastUpdatedTx,
			"last_source_ref":    item.LastSourceRef,
			"updated_at":         item.UpdatedAt,
		}).Error
}

func (t *ledgerTx) InsertScoreApplication(ctx context.Context, item *models.ScoreApplication) (bool, error) {
	if item == nil {
		return false, nil
	}
	return insertIgnore(t.db.WithContext(ctx), item)
}

func (t *ledgerTx) InsertSignalResolution(ctx context.Context, item *models.SignalResolution) (bool, error) {
	if item == nil {
		return false, nil
	}
	return insertIgnore(t.db.WithContext(ctx), item)
}

func (t *ledgerTx) InsertSignalManualUpdate(ctx context.Context, item *models.SignalManualUpdate) (bool, error) {
	if item == nil {
		return false, nil
	}
	return insertIgnore(t.db.WithContext(ctx), item)
}

func (t *ledgerTx) GetSignalManualUpdate(ctx context.Context, id string) (*models.SignalManualUpdate, error) {
	var item models.SignalManualUpdate
	err := t.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *ledgerTx) IncrementDailySignalCount(ctx context.Context, fid uint64, day int64) error {
	item := models.DailySignalCount{
		ID:    fmt.Sprintf("%d-%d", fid, day),
		FID:   fid,
		Day:   day,
		Count: 1,
	}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count": gorm.Expr("daily_signal_counts.count + 1"),
		}),
	}).Create(&item).Error
}

func (t *ledgerTx) IncrementFidStats(ctx context.Context, fid uint64, delta repository.FidStatsDelta) error {
	now := time.Now().UTC()
	item := models.FidStats{
		FID:                  fid,
		TotalSignals:         delta.Total,
		ActiveSignals:        delta.Active,
		WonSignals:           delta.Won,
		LostSignals:          delta.Lost,
		IndeterminateSignals: delta.Indeterminate,
		UpdatedAt:            now,
	}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fid"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_signals":         gorm.Expr("fid_stats.total_signals + ?", delta.Total),
			"active_signals":        gorm.Expr("fid_stats.active_signals + ?", delta.Active),
			"won_signals":           gorm.Expr("fid_stats.won_signals + ?", delta.Won),
			"lost_signals":          gorm.Expr("fid_stats.lost_signals + ?", delta.Lost),
			"indeterminate_signals": gorm.Expr("fid_stats.indeterminate_signals + ?", delta.Indeterminate),
			"updated_at":            now,
		}),
	}).Create(&item).Error
}
