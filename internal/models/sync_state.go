package models

import (
	"time"
)

// SyncState tracks the last event applied per ingest scope (one per chain).
type SyncState struct {
	Scope         string     `gorm:"primaryKey;type:text"`
	LastBlock     uint64     `gorm:"not null;default:0"`
	LastLogIndex  uint       `gorm:"not null;default:0"`
	LastSuccessAt *time.Time `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz"`
	LastError     *string    `gorm:"type:text"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
