package task

import (
	"context"
	"sync"
	"time"

	"github.com/quizforge/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Config contains runner configuration.
type Config struct {
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent: 32,
		Timeout:       10 * time.Second,
	}
}

// Runner executes detached background work, such as settlements that must
// complete after the originating request has gone away.
type Runner struct {
	logger *zap.Logger
	config *Config

	// Concurrency control
	semaphore chan struct{}

	// Lifecycle
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRunner creates a new background runner.
func NewRunner(logger *zap.Logger, config *Config) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		logger:    logger.Named("task-runner"),
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}
}

var _ outbound.BackgroundRunnerPort = (*Runner)(nil)

// Go schedules fn with a fresh context bounded by the configured timeout.
// It returns false once Stop has been called.
func (r *Runner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.logger.Warn("runner stopped, dropping task", zap.String("task", name))
		return false
	}

	r.wg.Add(1)
	go r.execute(name, fn)
	return true
}

// Stop rejects new work and waits for scheduled work to finish. Tasks
// still waiting for a slot are started anyway: dropping them would lose
// settlements.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.logger.Info("stopping task runner")
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

func (r *Runner) execute(name string, fn func(ctx context.Context)) {
	defer r.wg.Done()

	r.semaphore <- struct{}{}
	defer func() { <-r.semaphore }()

	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", rec))
		}
	}()

	start := time.Now()
	fn(ctx)
	r.logger.Debug("task completed",
		zap.String("task", name),
		zap.Duration("duration", time.Since(start)),
	)
}
