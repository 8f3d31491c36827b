package database

import (
	"fmt"

	"github.com/quizforge/server/internal/infra/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Option configures the gorm connection.
type Option func(*gorm.DB) error

// WithTracing registers the otelgorm plugin. Query variables are left out
// of spans since they carry account ids.
func WithTracing(enabled bool) Option {
	return func(db *gorm.DB) error {
		if !enabled {
			return nil
		}
		return db.Use(otelgorm.NewPlugin(
			otelgorm.WithDBName("postgresql"),
			otelgorm.WithoutQueryVariables(),
		))
	}
}

// New creates a new database connection.
func New(cfg *config.DatabaseConfig, opts ...Option) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	for _, opt := range opts {
		if err := opt(db); err != nil {
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
