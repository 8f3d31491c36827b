package llm

import (
	"context"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/quizforge/server/internal/port/outbound"
)

const (
	ProviderOpenAI = "openai"

	systemPrompt = "You are a helpful assistant that writes multiple-choice quizzes."
)

// OpenAIGateway calls the OpenAI chat completions API. Cost is the total
// token count reported by the provider.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway creates an OpenAI gateway. baseURL may be empty.
func NewOpenAIGateway(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

var _ outbound.CompletionGatewayPort = (*OpenAIGateway)(nil)

// Name returns the provider name.
func (g *OpenAIGateway) Name() string { return ProviderOpenAI }

// Invoke sends one chat completion.
func (g *OpenAIGateway) Invoke(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.MaxCost > 0 {
		chatReq.MaxTokens = int(req.MaxCost)
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(ProviderOpenAI, err)
	}

	if resp.Usage.TotalTokens <= 0 {
		return nil, ambiguous(ProviderOpenAI, "response carries no usage")
	}
	if len(resp.Choices) == 0 {
		return nil, ambiguous(ProviderOpenAI, "response has no choices (%d tokens used)", resp.Usage.TotalTokens)
	}

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return &outbound.CompletionResult{
		Content:    resp.Choices[0].Message.Content,
		ActualCost: int64(resp.Usage.TotalTokens),
		Model:      model,
		Provider:   ProviderOpenAI,
	}, nil
}
