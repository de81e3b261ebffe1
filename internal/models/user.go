package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is an author profile from identity enrichment.
type User struct {
	FID               uint64         `gorm:"column:fid;primaryKey;autoIncrement:false"`
	Username          string         `gorm:"type:text;index"`
	DisplayName       string         `gorm:"type:text"`
	PfpURL            string         `gorm:"type:text"`
	Bio               string         `gorm:"type:text"`
	CustodyAddress    string         `gorm:"type:varchar(42)"`
	VerifiedAddresses datatypes.JSON `gorm:"type:jsonb"`
	FollowerCount     int64          `gorm:"not null;default:0"`
	FollowingCount    int64          `gorm:"not null;default:0"`
	RawJSON           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (User) TableName() string {
	return "users"
}
