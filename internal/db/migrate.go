package db

import (
	"memetic/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Signal{},
		&models.AuthorScore{},
		&models.ScoreApplication{},
		&models.SignalResolution{},
		&models.SignalManualUpdate{},
		&models.Token{},
		&models.User{},
		&models.DailySignalCount{},
		&models.FidStats{},
		&models.WalletAuthorization{},
		&models.WalletUnauthorization{},
		&models.FidBan{},
		&models.WalletBan{},
		&models.BackendSignerUpdate{},
		&models.ResolverUpdate{},
		&models.FailedResolutionJob{},
		&models.SyncState{},
		&models.SystemSetting{},
		&models.RejectedEvent{},
	)
}
