package app

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quizforge/server/internal/adapter/outbound/memory"
	mongostore "github.com/quizforge/server/internal/adapter/outbound/mongo"
	"github.com/quizforge/server/internal/adapter/outbound/postgres"
	"github.com/quizforge/server/internal/infra/config"
	"github.com/quizforge/server/internal/port/outbound"
	"github.com/quizforge/server/internal/shared/database"
)

// Ledger is an opened ledger store and the connection behind it.
type Ledger struct {
	Store outbound.LedgerStorePort
	// Driver is the metering.store value that selected Store.
	Driver string

	db    *gorm.DB
	mongo *mongo.Client
}

// OpenLedger connects the store named by cfg.Metering.Store and runs its
// migrations when enabled.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{Driver: cfg.Metering.Store}

	switch cfg.Metering.Store {
	case config.StorePostgres:
		db, err := database.New(&cfg.Database, database.WithTracing(cfg.Tracing.Enabled))
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.AutoMigrate(db); err != nil {
				_ = database.Close(db)
				return nil, fmt.Errorf("migrate ledger: %w", err)
			}
		}
		l.db = db
		l.Store = postgres.NewLedgerStore(db)

	case config.StoreMongo:
		client, err := database.NewMongo(ctx, &cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("init mongo: %w", err)
		}
		store := mongostore.NewLedgerStore(client, cfg.Mongo.Database)
		if err := store.Migrate(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
		l.mongo = client
		l.Store = store

	case config.StoreMemory:
		logger.Warn("using in-memory ledger, balances are lost on restart")
		l.Store = memory.NewLedgerStore()

	default:
		return nil, fmt.Errorf("unknown metering.store %q", cfg.Metering.Store)
	}

	logger.Info("ledger store ready", zap.String("driver", l.Driver))
	return l, nil
}

// Close releases the store connection.
func (l *Ledger) Close(ctx context.Context) error {
	switch {
	case l.db != nil:
		return database.Close(l.db)
	case l.mongo != nil:
		return l.mongo.Disconnect(ctx)
	}
	return nil
}
