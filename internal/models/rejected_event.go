package models

import "time"

// RejectedEvent is a chain event the ledger refused for a reason that
// redelivery cannot change. The cursor moves past it.
type RejectedEvent struct {
	ID              string    `gorm:"primaryKey;type:text"`
	Kind            string    `gorm:"type:varchar(32);not null;index"`
	ChainID         uint64    `gorm:"not null"`
	BlockNumber     uint64    `gorm:"not null"`
	LogIndex        uint      `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	SignalID        uint64    `gorm:"index"`
	Reason          string    `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (RejectedEvent) TableName() string {
	return "rejected_events"
}
