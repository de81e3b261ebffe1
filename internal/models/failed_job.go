package models

import "time"

const (
	FailedJobStatusParked   = "parked"
	FailedJobStatusRequeued = "requeued"
)

// FailedResolutionJob is a scheduler job that exhausted its attempts.
type FailedResolutionJob struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)"`
	SignalID   uint64     `gorm:"not null;index"`
	Attempts   int        `gorm:"not null"`
	LastError  string     `gorm:"type:text"`
	Status     string     `gorm:"type:varchar(16);not null;index"`
	FailedAt   time.Time  `gorm:"type:timestamptz;not null;index"`
	RequeuedAt *time.Time `gorm:"type:timestamptz"`
}

func (FailedResolutionJob) TableName() string {
	return "failed_resolution_jobs"
}
