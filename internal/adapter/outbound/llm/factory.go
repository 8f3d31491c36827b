package llm

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/quizforge/server/internal/infra/config"
	"github.com/quizforge/server/internal/port/outbound"
)

// Gateway is a breaker-guarded provider plus its cleanup.
type Gateway struct {
	*BreakerGateway
	close func() error
}

// Close releases provider resources.
func (g *Gateway) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// New builds the configured provider gateway.
func New(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client, logger *zap.Logger) (*Gateway, error) {
	var (
		provider outbound.CompletionGatewayPort
		closer   func() error
	)

	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		provider = NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, httpClient)
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key is required")
		}
		g, err := NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.Model, httpClient)
		if err != nil {
			return nil, err
		}
		provider, closer = g, g.Close
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	breaker := NewBreakerGateway(provider, BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.CircuitTimeout,
	}, logger)

	return &Gateway{BreakerGateway: breaker, close: closer}, nil
}
