package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quizforge/server/internal/adapter/outbound/jwt"
	"github.com/quizforge/server/internal/adapter/outbound/llm"
	"github.com/quizforge/server/internal/domain/credit"
	"github.com/quizforge/server/internal/domain/metering"
	"github.com/quizforge/server/internal/domain/quiz"
	"github.com/quizforge/server/internal/infra/config"
	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/infra/httpclient"
	"github.com/quizforge/server/internal/infra/task"
	"github.com/quizforge/server/internal/infra/tracing"
	"github.com/quizforge/server/internal/shared/cache"
	"github.com/quizforge/server/internal/shared/logger"
	"github.com/quizforge/server/internal/utils/metrics"
)

// App owns every long-lived component of the server.
type App struct {
	config *config.Config
	logger *zap.Logger

	tracer   *tracing.Provider
	ledger   *Ledger
	redis    redis.UniversalClient
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	eventBus *events.Bus
	runner   *task.Runner
	gateway  *llm.Gateway
	tokens   *jwt.Manager

	meteringDomain *metering.Domain
	creditDomain   *credit.Domain
	quizDomain     *quiz.Domain
	sweeper        *metering.Sweeper

	router *gin.Engine
	server *http.Server
}

// New builds the application from cfg. Nothing is started until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		config: cfg,
		logger: logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}),
	}

	if err := a.init(ctx); err != nil {
		a.Stop(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	tracer, err := tracing.Setup(ctx, cfg.Tracing, a.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tracer

	a.ledger, err = OpenLedger(ctx, cfg, a.logger)
	if err != nil {
		return err
	}

	// Redis backs rate limiting and idempotency; without it both are skipped.
	if cfg.Redis.Address != "" {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, rate limiting and idempotency disabled", zap.Error(err))
		} else {
			a.redis = client
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New("quizforge", a.registry)

	a.eventBus = events.NewBus(a.logger)
	a.eventBus.Register(a.metrics)
	a.eventBus.Subscribe(events.DeficitRecordedType, a.logDeficit)

	a.runner = task.NewRunner(a.logger, &task.Config{
		MaxConcurrent: 64,
		Timeout:       cfg.Metering.SettleTimeout,
	})

	a.tokens, err = jwt.NewManager(jwt.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer})
	if err != nil {
		return fmt.Errorf("init token validator: %w", err)
	}

	a.gateway, err = llm.New(ctx, cfg.LLM, httpclient.New(cfg.HTTPClient, httpclient.WithTracing(cfg.Tracing.Enabled)), a.logger)
	if err != nil {
		return fmt.Errorf("init completion gateway: %w", err)
	}

	a.meteringDomain = metering.NewMeteringDomain(
		a.ledger.Store,
		a.eventBus,
		a.metrics,
		metering.Config{ReservationTTL: cfg.Metering.ReservationTTL},
		a.logger,
	)
	a.creditDomain = credit.NewCreditDomain(a.ledger.Store, a.eventBus, a.metrics, a.logger)
	a.quizDomain, err = quiz.NewQuizDomain(
		a.meteringDomain,
		a.gateway,
		a.runner,
		a.metrics,
		quiz.Config{
			PromptTemplate: cfg.LLM.PromptTemplate,
			MaxTokens:      cfg.LLM.MaxTokens,
			MaxEstimate:    cfg.Metering.MaxEstimate,
			SettleTimeout:  cfg.Metering.SettleTimeout,
		},
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("init quiz domain: %w", err)
	}
	a.sweeper = metering.NewSweeper(a.meteringDomain, cfg.Metering.SweepInterval, a.logger)

	a.router = a.setupRouter()
	a.registerRoutes()

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return nil
}

// logDeficit surfaces shortfalls for out-of-band collection.
func (a *App) logDeficit(_ context.Context, event events.Event) error {
	if e, ok := event.(*events.DeficitRecordedEvent); ok {
		a.logger.Warn("billing deficit recorded",
			zap.String("account_id", e.AccountID()),
			zap.String("reservation_id", e.ReservationID),
			zap.Int64("shortfall", e.Shortfall),
		)
	}
	return nil
}

// Run starts the sweeper and serves HTTP until ctx is cancelled, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.Stop(context.Background())
			return fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
	}
	a.Stop(shutdownCtx)
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.config.Server.ShutdownTimeout > 0 {
		return a.config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases resources in reverse order of creation. In-flight
// settlements are drained before the ledger closes.
func (a *App) Stop(ctx context.Context) {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			a.logger.Warn("close completion gateway", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(ctx); err != nil {
			a.logger.Warn("close ledger store", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
