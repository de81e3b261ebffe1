package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"memetic/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// zapWriter routes gorm's slow query and error lines into the service logger.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

func Open(cfg config.DBConfig, log *zap.Logger) (*DB, error) {
	gl := gormlogger.Default.LogMode(gormlogger.Silent)
	if log != nil {
		gl = gormlogger.New(zapWriter{log: log.Named("gorm").Sugar()}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(ctx context.Context, db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.PingContext(ctx)
}

var timezonePattern = regexp.MustCompile(`^[A-Za-z0-9_+\-/]+$`)

func SetTimezone(db *DB, tz string) error {
	if tz == "" || db == nil || db.SQL == nil {
		return nil
	}
	if !timezonePattern.MatchString(tz) {
		return fmt.Errorf("invalid timezone %q", tz)
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}
