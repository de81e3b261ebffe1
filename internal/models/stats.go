package models

import "time"

// DailySignalCount counts signals per author per day since deployment.
type DailySignalCount struct {
	ID    string `gorm:"primaryKey;type:text"`
	FID   uint64 `gorm:"column:fid;not null;index"`
	Day   int64  `gorm:"not null;index"`
	Count int64  `gorm:"not null;default:0"`
}

func (DailySignalCount) TableName() string {
	return "daily_signal_counts"
}

type FidStats struct {
	FID                  uint64    `gorm:"column:fid;primaryKey;autoIncrement:false"`
	TotalSignals         int64     `gorm:"not null;default:0"`
	ActiveSignals        int64     `gorm:"not null;default:0"`
	WonSignals           int64     `gorm:"not null;default:0"`
	LostSignals          int64     `gorm:"not null;default:0"`
	IndeterminateSignals int64     `gorm:"not null;default:0"`
	UpdatedAt            time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FidStats) TableName() string {
	return "fid_stats"
}
