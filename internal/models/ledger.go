package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthorScore is the per-author MFS ledger row.
type AuthorScore struct {
	FID              uint64          `gorm:"column:fid;primaryKey;autoIncrement:false"`
	TotalMFS         decimal.Decimal `gorm:"column:total_mfs;type:numeric(78,0);not null;default:0"`
	LastUpdatedBlock uint64          `gorm:"not null;default:0"`
	LastUpdatedTx    string          `gorm:"type:varchar(66)"`
	LastSourceRef    string          `gorm:"type:text"`
	UpdatedAt        time.Time       `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AuthorScore) TableName() string {
	return "fid_total_mfs"
}

// ScoreApplication records every delta ever applied to a ledger row.
// The unique source ref makes re-delivery a no-op.
type ScoreApplication struct {
	SourceRef string    `gorm:"primaryKey;type:text"`
	FID       uint64    `gorm:"column:fid;not null;index"`
	Delta     int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ScoreApplication) TableName() string {
	return "score_applications"
}

// SignalResolution is an append-only audit row per resolution.
type SignalResolution struct {
	ID              string           `gorm:"primaryKey;type:text"`
	SignalID        uint64           `gorm:"not null;index"`
	FID             uint64           `gorm:"column:fid;not null;index"`
	Outcome         string           `gorm:"type:varchar(16);not null"`
	MFSDelta        int64            `gorm:"column:mfs_delta;not null"`
	NewTotalMFS     decimal.Decimal  `gorm:"column:new_total_mfs;type:numeric(78,0);not null"`
	ExitMarketCap   *decimal.Decimal `gorm:"type:numeric(78,0)"`
	ResolutionError bool             `gorm:"not null;default:false"`
	BlockNumber     uint64           `gorm:"not null;default:0"`
	TransactionHash string           `gorm:"type:varchar(66)"`
	Source          string           `gorm:"type:varchar(16);not null"`
	SourceRef       string           `gorm:"type:text;not null"`
	CreatedAt       time.Time        `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SignalResolution) TableName() string {
	return "signal_resolutions"
}

// SignalManualUpdate is the audit row of a privileged correction.
type SignalManualUpdate struct {
	ID                string          `gorm:"primaryKey;type:text"`
	SignalID          uint64          `gorm:"not null;index"`
	FID               uint64          `gorm:"column:fid;not null;index"`
	OldEntryMarketCap decimal.Decimal `gorm:"type:numeric(78,0);not null"`
	NewEntryMarketCap decimal.Decimal `gorm:"type:numeric(78,0);not null"`
	OldMFSDelta       int64           `gorm:"column:old_mfs_delta;not null"`
	NewMFSDelta       int64           `gorm:"column:new_mfs_delta;not null"`
	NewTotalMFS       decimal.Decimal `gorm:"column:new_total_mfs;type:numeric(78,0);not null"`
	Reason            string          `gorm:"type:text;not null"`
	BlockNumber       uint64          `gorm:"not null;default:0"`
	TransactionHash   string          `gorm:"type:varchar(66)"`
	CreatedAt         time.Time       `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SignalManualUpdate) TableName() string {
	return "signal_manual_updates"
}
