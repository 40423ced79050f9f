package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// Database wraps the gorm connection and implements the store interfaces.
type Database struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDatabase opens the configured database, applies connection settings, and
// migrates the schema.
func NewDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Type == "sqlite" && cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dialer, err := NewDialectDialer(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialer.Dialect(), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dialer.ConfigureConnection(db); err != nil {
		return nil, fmt.Errorf("failed to configure connection: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Repository{},
		&models.RepositoryGitProperties{},
		&models.RepositoryFeatures{},
		&models.RepositoryADOProperties{},
		&models.RepositoryValidation{},
		&models.Batch{},
		&models.MigrationHistory{},
		&models.MigrationLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("Database ready", "type", cfg.Type)
	return &Database{db: db, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
