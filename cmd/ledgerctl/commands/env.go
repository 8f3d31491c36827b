// Package commands implements the ledgerctl subcommands.
package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quizforge/server/internal/app"
	"github.com/quizforge/server/internal/domain/credit"
	"github.com/quizforge/server/internal/domain/metering"
	"github.com/quizforge/server/internal/infra/config"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/shared/logger"
)

type closer interface {
	Close(ctx context.Context) error
}

// Env holds the resources shared by subcommands. The ledger is opened on
// first use so credential commands run without a database.
type Env struct {
	ConfigPath string

	cfg    *config.Config
	logger *zap.Logger
	ledger closer

	Metering inbound.MeteringDomain
	Credit   inbound.CreditDomain
}

// Config loads the configuration once.
func (e *Env) Config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.LoadFrom(e.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	return cfg, nil
}

// Open connects the ledger store and builds the domains. The CLI publishes
// no events and records no metrics.
func (e *Env) Open(ctx context.Context) error {
	if e.Metering != nil {
		return nil
	}

	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if cfg.Metering.Store == config.StoreMemory {
		return fmt.Errorf("metering.store is %q: ledgerctl needs a persistent store", cfg.Metering.Store)
	}

	e.logger = logger.New(&logger.Config{Level: "warn", Format: cfg.Log.Format})
	ledger, err := app.OpenLedger(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	e.ledger = ledger

	e.Metering = metering.NewMeteringDomain(ledger.Store, nil, nil,
		metering.Config{ReservationTTL: cfg.Metering.ReservationTTL}, e.logger)
	e.Credit = credit.NewCreditDomain(ledger.Store, nil, nil, e.logger)
	return nil
}

// Close releases the ledger connection if one was opened.
func (e *Env) Close(ctx context.Context) {
	if e.ledger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.ledger.Close(ctx); err != nil && e.logger != nil {
		e.logger.Warn("close ledger store", zap.Error(err))
	}
	e.ledger = nil
}
