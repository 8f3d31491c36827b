package outbound

import (
	"context"
	"errors"
)

// Gateway outcome classes. Every gateway error wraps exactly one of these.
var (
	// ErrGatewayFailure means the operation definitely did not run or
	// produced nothing billable.
	ErrGatewayFailure = errors.New("gateway failure")

	// ErrAmbiguousGatewayOutcome means the operation may have run and
	// consumed resources, but its cost is unknown.
	ErrAmbiguousGatewayOutcome = errors.New("ambiguous gateway outcome")
)

// CompletionRequest is one metered text completion.
type CompletionRequest struct {
	Prompt string
	// MaxCost bounds the provider-side output budget in tokens.
	MaxCost int64
}

// CompletionResult is the provider response with its measured cost.
type CompletionResult struct {
	Content    string
	ActualCost int64
	Model      string
	Provider   string
}

// CompletionGatewayPort performs the metered LLM call.
type CompletionGatewayPort interface {
	// Invoke sends the request. Errors wrap ErrGatewayFailure or
	// ErrAmbiguousGatewayOutcome.
	Invoke(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Name returns the provider name.
	Name() string
}
