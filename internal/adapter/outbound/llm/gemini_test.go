package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/server/internal/port/outbound"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recordingTransport struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
	body     string
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.requests = append(rt.requests, r)
	rt.mu.Unlock()
	return &http.Response{
		StatusCode: rt.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(rt.body)),
		Request:    r,
	}, nil
}

func (rt *recordingTransport) last(t *testing.T) *http.Request {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.NotEmpty(t, rt.requests)
	return rt.requests[len(rt.requests)-1]
}

func newGeminiGateway(t *testing.T, rt http.RoundTripper) *GeminiGateway {
	t.Helper()
	gw, err := NewGeminiGateway(context.Background(), "gm-key", "gemini-1.5-flash", &http.Client{Transport: rt})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestGeminiGateway_Invoke(t *testing.T) {
	t.Run("success bills total token count", func(t *testing.T) {
		rt := &recordingTransport{status: http.StatusOK, body: `[{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Q1: ..."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 260, "totalTokenCount": 300}
		}]`}
		gw := newGeminiGateway(t, rt)

		res, err := gw.Invoke(context.Background(), outbound.CompletionRequest{Prompt: "make a quiz", MaxCost: 1000})
		require.NoError(t, err)
		assert.Equal(t, "Q1: ...", res.Content)
		assert.Equal(t, int64(300), res.ActualCost)
		assert.Equal(t, ProviderGemini, res.Provider)

		req := rt.last(t)
		assert.Equal(t, "gm-key", req.Header.Get(apiKeyHeader))
		assert.Contains(t, req.URL.Path, "models/gemini-1.5-flash:")
	})

	t.Run("missing usage is ambiguous", func(t *testing.T) {
		rt := &recordingTransport{status: http.StatusOK, body: `[{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Q1"}]}}]
		}]`}
		gw := newGeminiGateway(t, rt)

		_, err := gw.Invoke(context.Background(), outbound.CompletionRequest{Prompt: "x"})
		assert.ErrorIs(t, err, outbound.ErrAmbiguousGatewayOutcome)
	})

	t.Run("api error is a failure", func(t *testing.T) {
		rt := &recordingTransport{status: http.StatusBadRequest, body: `{
			"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}
		}`}
		gw := newGeminiGateway(t, rt)

		_, err := gw.Invoke(context.Background(), outbound.CompletionRequest{Prompt: "x"})
		assert.ErrorIs(t, err, outbound.ErrGatewayFailure)
	})
}

func TestWithAPIKey(t *testing.T) {
	var seen string
	base := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(apiKeyHeader)
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})}

	keyed := withAPIKey(base, "k1")
	req, err := http.NewRequest(http.MethodGet, "https://generativelanguage.googleapis.com/v1beta/models", nil)
	require.NoError(t, err)

	resp, err := keyed.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "k1", seen)
	assert.Empty(t, req.Header.Get(apiKeyHeader), "caller request must not be mutated")
	_, plain := base.Transport.(roundTripFunc)
	assert.True(t, plain, "shared client must keep its transport")
}
