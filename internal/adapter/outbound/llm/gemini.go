package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/quizforge/server/internal/port/outbound"
)

const ProviderGemini = "gemini"

// GeminiGateway calls Google Gemini through the generative-ai SDK.
type GeminiGateway struct {
	client *genai.Client
	model  string
}

// NewGeminiGateway creates a Gemini gateway. option.WithHTTPClient disables
// every other auth option, so a supplied client gets the key on its transport.
func NewGeminiGateway(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiGateway, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(withAPIKey(httpClient, apiKey)))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGateway{client: client, model: model}, nil
}

var _ outbound.CompletionGatewayPort = (*GeminiGateway)(nil)

// Name returns the provider name.
func (g *GeminiGateway) Name() string { return ProviderGemini }

// Invoke sends one generate-content request.
func (g *GeminiGateway) Invoke(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	m := g.client.GenerativeModel(g.model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	if req.MaxCost > 0 {
		m.SetMaxOutputTokens(int32(req.MaxCost))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, classify(ProviderGemini, err)
	}
	if resp.UsageMetadata == nil || resp.UsageMetadata.TotalTokenCount <= 0 {
		return nil, ambiguous(ProviderGemini, "response carries no usage")
	}

	text := firstText(resp)
	if text == "" {
		return nil, ambiguous(ProviderGemini, "response has no text (%d tokens used)", resp.UsageMetadata.TotalTokenCount)
	}

	return &outbound.CompletionResult{
		Content:    text,
		ActualCost: int64(resp.UsageMetadata.TotalTokenCount),
		Model:      g.model,
		Provider:   ProviderGemini,
	}, nil
}

// Close releases the underlying client.
func (g *GeminiGateway) Close() error {
	return g.client.Close()
}

const apiKeyHeader = "x-goog-api-key"

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(r)
}

// withAPIKey returns a copy of c that sends key on every request.
func withAPIKey(c *http.Client, key string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	keyed := *c
	keyed.Transport = &apiKeyTransport{key: key, base: base}
	return &keyed
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}
