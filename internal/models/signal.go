package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SignalStatusActive          = "ACTIVE"
	SignalStatusResolved        = "RESOLVED"
	SignalStatusManuallyUpdated = "MANUALLY_UPDATED"
)

const (
	OutcomeWon           = "WON"
	OutcomeLost          = "LOST"
	OutcomeIndeterminate = "INDETERMINATE"
)

const (
	ResolutionSourceScheduled = "scheduled"
	ResolutionSourceChain     = "chain"
)

// SecondsPerDay converts duration_days into the expiry offset.
const SecondsPerDay = 86400

// Signal is a time-bound directional prediction on a token's market cap.
// CreatedAt/ExpiresAt are chain timestamps in unix seconds.
type Signal struct {
	SignalID     uint64 `gorm:"column:signal_id;primaryKey;autoIncrement:false"`
	FID          uint64 `gorm:"column:fid;not null;index"`
	TokenAddress string `gorm:"type:varchar(42);not null;index"`
	// Direction is true for UP, false for DOWN.
	Direction      bool            `gorm:"not null"`
	DurationDays   uint32          `gorm:"not null"`
	EntryMarketCap decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0"`

	CreatedAt int64 `gorm:"column:created_at;autoCreateTime:false;not null;index"`
	ExpiresAt int64 `gorm:"not null;index"`

	Status          string           `gorm:"type:varchar(24);not null;index"`
	Resolved        bool             `gorm:"not null;default:false"`
	Outcome         string           `gorm:"type:varchar(16)"`
	MFSDelta        int64            `gorm:"column:mfs_delta;not null;default:0"`
	ExitMarketCap   *decimal.Decimal `gorm:"type:numeric(78,0)"`
	ResolutionError bool             `gorm:"not null;default:false"`
	DataSources     datatypes.JSON   `gorm:"type:jsonb"`

	BlockNumber      uint64     `gorm:"not null"`
	TransactionHash  string     `gorm:"type:varchar(66);not null"`
	ResolvedAt       *time.Time `gorm:"type:timestamptz"`
	ResolutionSource string     `gorm:"type:varchar(16)"`
	ResolutionRef    string     `gorm:"type:text"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Signal) TableName() string {
	return "signals"
}

// IsUp reports whether the signal predicts a rising market cap.
func (s Signal) IsUp() bool {
	return s.Direction
}

func DirectionLabel(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}
