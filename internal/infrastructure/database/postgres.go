package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/phoneauth/internal/config"
	"github.com/you/phoneauth/internal/infrastructure/repositories"
)

// Open creates a postgres connection with production-ready settings
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	return OpenDialector(postgres.Open(cfg.DSN), cfg)
}

// OpenDialector opens db with the given dialector and applies pool settings.
// Driver errors are translated so unique violations surface as gorm.ErrDuplicatedKey.
func OpenDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

// AutoMigrate performs database migration for the user and challenge tables.
// Casbin's rule table is created by its adapter.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&repositories.DBUser{}); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	if err := db.AutoMigrate(&repositories.DBChallenge{}); err != nil {
		return fmt.Errorf("failed to migrate otp challenges table: %w", err)
	}
	return nil
}
