package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/quizforge/server/internal/port/outbound"
)

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
	}
}

// BreakerGateway guards a gateway with a circuit breaker. While the breaker
// is open calls fail fast with ErrGatewayFailure and nothing is sent.
type BreakerGateway struct {
	next    outbound.CompletionGatewayPort
	breaker *gobreaker.CircuitBreaker[*outbound.CompletionResult]
	logger  *zap.Logger
}

// NewBreakerGateway wraps next.
func NewBreakerGateway(next outbound.CompletionGatewayPort, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	log := logger.Named("gateway").With(zap.String("provider", next.Name()))

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*outbound.CompletionResult](settings),
		logger:  log,
	}
}

var _ outbound.CompletionGatewayPort = (*BreakerGateway)(nil)

// Name returns the wrapped provider name.
func (g *BreakerGateway) Name() string { return g.next.Name() }

// State returns the current breaker state.
func (g *BreakerGateway) State() gobreaker.State { return g.breaker.State() }

// Invoke calls the wrapped gateway through the breaker.
func (g *BreakerGateway) Invoke(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	result, err := g.breaker.Execute(func() (*outbound.CompletionResult, error) {
		return g.next.Invoke(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", outbound.ErrGatewayFailure, g.next.Name(), err)
	}
	return result, err
}
