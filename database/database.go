package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/viktsys/bolsaingest/config"
	"github.com/viktsys/bolsaingest/models"
)

// InitDB opens the configured database, retrying with exponential backoff
// until cfg.ConnectTimeout elapses, then migrates the schema.
func InitDB(ctx context.Context, cfg config.DBConfig, log *zap.SugaredLogger) (*gorm.DB, error) {
	var db *gorm.DB
	connect := func() error {
		dialector, err := openDialector(cfg)
		if err != nil {
			return backoff.Permanent(err)
		}
		conn, err := gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to get database instance: %w", err))
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		db = conn
		return nil
	}

	retry := newConnectBackoff(cfg.ConnectTimeout)
	err := backoff.RetryNotify(connect, backoff.WithContext(retry, ctx), func(err error, wait time.Duration) {
		log.Warnw("Database not ready, retrying", "driver", cfg.Driver, "error", err, "retry_in", wait)
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Infow("Database connected and migrated successfully", "driver", cfg.Driver)
	return db, nil
}

func openDialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func newConnectBackoff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = maxElapsed
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.1
	return b
}

// Migrate creates or updates the snapshot table and its indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.PriceSnapshot{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := OptimizeIndexes(db); err != nil {
		return err
	}
	return nil
}
