package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memetic/internal/models"
	"memetic/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return classifyError(s.db.WithContext(ctx).Transaction(fn))
}

// --- signals ----------------------------------------------------------------

func (s *Store) GetSignal(ctx context.Context, signalID uint64) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Model(&models.Signal{}).Where("signal_id = ?", signalID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "signal_id")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applySignalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.FID != nil {
		query = query.Where("fid = ?", *params.FID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.TokenAddress != nil && strings.TrimSpace(*params.TokenAddress) != "" {
		query = query.Where("token_address = ?", strings.ToLower(strings.TrimSpace(*params.TokenAddress)))
	}
	return query
}

func (s *Store) ListExpiredActiveSignals(ctx context.Context, expiredBefore int64, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Signal
	if err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status = ?", models.SignalStatusActive).
		Where("expires_at <= ?", expiredBefore).
		Order("expires_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- audit ------------------------------------------------------------------

func applyAuditFilters(query *gorm.DB, params repository.ListAuditParams) *gorm.DB {
	if params.SignalID != nil {
		query = query.Where("signal_id = ?", *params.SignalID)
	}
	if params.FID != nil {
		query = query.Where("fid = ?", *params.FID)
	}
	return query
}

func (s *Store) ListSignalResolutions(ctx context.Context, params repository.ListAuditParams) ([]models.SignalResolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.SignalResolution{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.SignalResolution
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignalResolutions(ctx context.Context, params repository.ListAuditParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applyAuditFilters(s.db.WithContext(ctx).Model(&models.SignalResolution{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListSignalManualUpdates(ctx context.Context, params repository.ListAuditParams) ([]models.SignalManualUpdate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.SignalManualUpdate{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.SignalManualUpdate
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignalManualUpdates(ctx context.Context, params repository.ListAuditParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applyAuditFilters(s.db.WithContext(ctx).Model(&models.SignalManualUpdate{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- authors ----------------------------------------------------------------

func (s *Store) GetAuthorScore(ctx context.Context, fid uint64) (*models.AuthorScore, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.AuthorScore
	err := s.db.WithContext(ctx).Model(&models.AuthorScore{}).Where("fid = ?", fid).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTopAuthors(ctx context.Context, limit int) ([]models.AuthorScore, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.AuthorScore
	if err := s.db.WithContext(ctx).
		Model(&models.AuthorScore{}).
		Order("total_mfs desc").
		Order("fid asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetFidStats(ctx context.Context, fid uint64) (*models.FidStats, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.FidStats
	err := s.db.WithContext(ctx).Model(&models.FidStats{}).Where("fid = ?", fid).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- tokens & users ---------------------------------------------------------

func (s *Store) UpsertToken(ctx context.Context, item *models.Token) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Address = strings.ToLower(strings.TrimSpace(item.Address))
	if item.Address == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source",
			"provider_id",
			"name",
			"symbol",
			"decimals",
			"categories",
			"description",
			"images",
			"market_data",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetToken(ctx context.Context, address string) (*models.Token, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, nil
	}
	var item models.Token
	err := s.db.WithContext(ctx).Model(&models.Token{}).Where("address = ?", address).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertUsers(ctx context.Context, items []models.User) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username",
			"display_name",
			"pfp_url",
			"bio",
			"custody_address",
			"verified_addresses",
			"follower_count",
			"following_count",
			"raw_json",
			"updated_at",
		}),
	}).CreateInBatches(items, 100).Error
}

func (s *Store) GetUser(ctx context.Context, fid uint64) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("fid = ?", fid).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListStaleAuthorFIDs returns authors with no profile row or one last refreshed before updatedBefore.
func (s *Store) ListStaleAuthorFIDs(ctx context.Context, updatedBefore time.Time, limit int) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var fids []uint64
	err := s.db.WithContext(ctx).
		Table("fid_stats AS fs").
		Select("fs.fid").
		Joins("LEFT JOIN users u ON u.fid = fs.fid").
		Where("u.fid IS NULL OR u.updated_at < ?", updatedBefore).
		Order("fs.fid asc").
		Limit(limit).
		Pluck("fs.fid", &fids).Error
	if err != nil {
		return nil, err
	}
	return fids, nil
}

// --- sync state -------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SyncState
	err := s.db.WithContext(ctx).Model(&models.SyncState{}).Where("scope = ?", scope).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_block",
			"last_log_index",
			"last_success_at",
			"last_attempt_at",
			"last_error",
		}),
	}).Create(state).Error
}

// --- helpers ----------------------------------------------------------------

// classifyError maps retryable postgres failures onto repository.ErrConflict.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s (%s)", repository.ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

func insertIgnore(db *gorm.DB, item any) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
