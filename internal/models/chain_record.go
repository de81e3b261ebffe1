package models

import "time"

// Permission and admin events are stored as they arrive; ids follow the
// chain natural keys so redelivery is an insert-or-ignore.

type WalletAuthorization struct {
	ID              string    `gorm:"primaryKey;type:text"`
	FID             uint64    `gorm:"column:fid;not null;index"`
	Wallet          string    `gorm:"type:varchar(42);not null;index"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WalletAuthorization) TableName() string {
	return "wallet_authorizations"
}

type WalletUnauthorization struct {
	ID              string    `gorm:"primaryKey;type:text"`
	FID             uint64    `gorm:"column:fid;not null;index"`
	Wallet          string    `gorm:"type:varchar(42);not null;index"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WalletUnauthorization) TableName() string {
	return "wallet_unauthorizations"
}

// FidBan stores both bans and unbans; Banned tells them apart.
type FidBan struct {
	ID              string    `gorm:"primaryKey;type:text"`
	Banned          bool      `gorm:"primaryKey"`
	FID             uint64    `gorm:"column:fid;not null;index"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (FidBan) TableName() string {
	return "fid_bans"
}

type WalletBan struct {
	ID              string    `gorm:"primaryKey;type:text"`
	Banned          bool      `gorm:"primaryKey"`
	Wallet          string    `gorm:"type:varchar(42);not null;index"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WalletBan) TableName() string {
	return "wallet_bans"
}

type BackendSignerUpdate struct {
	ID              string    `gorm:"primaryKey;type:text"`
	OldSigner       string    `gorm:"type:varchar(42)"`
	NewSigner       string    `gorm:"type:varchar(42);not null"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (BackendSignerUpdate) TableName() string {
	return "backend_signer_updates"
}

type ResolverUpdate struct {
	ID              string    `gorm:"primaryKey;type:text"`
	OldResolver     string    `gorm:"type:varchar(42)"`
	NewResolver     string    `gorm:"type:varchar(42);not null"`
	BlockNumber     uint64    `gorm:"not null"`
	TransactionHash string    `gorm:"type:varchar(66);not null"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ResolverUpdate) TableName() string {
	return "resolver_updates"
}
