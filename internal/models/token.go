package models

import (
	"time"

	"gorm.io/datatypes"
)

// Token is the normalized metadata of a traded token, keyed by lower-case contract address.
type Token struct {
	Address     string         `gorm:"primaryKey;type:varchar(42)"`
	Source      string         `gorm:"type:varchar(32);not null"`
	ProviderID  string         `gorm:"type:text"`
	Name        string         `gorm:"type:text;not null"`
	Symbol      string         `gorm:"type:varchar(64);not null"`
	Decimals    int            `gorm:"not null;default:18"`
	Categories  datatypes.JSON `gorm:"type:jsonb"`
	Description string         `gorm:"type:text"`
	Images      datatypes.JSON `gorm:"type:jsonb"`
	MarketData  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (Token) TableName() string {
	return "tokens"
}
