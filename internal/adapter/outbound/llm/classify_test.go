package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/quizforge/server/internal/port/outbound"
)

func TestClassify(t *testing.T) {
	dialErr := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	resetErr := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"openai api error", &openai.APIError{HTTPStatusCode: 500, Message: "oops"}, outbound.ErrGatewayFailure},
		{"gemini api error", &googleapi.Error{Code: 400, Message: "bad"}, outbound.ErrGatewayFailure},
		{"openai request error", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, outbound.ErrGatewayFailure},
		{"dial refused", dialErr, outbound.ErrGatewayFailure},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, outbound.ErrGatewayFailure},
		{"reset after send", resetErr, outbound.ErrAmbiguousGatewayOutcome},
		{"deadline", context.DeadlineExceeded, outbound.ErrAmbiguousGatewayOutcome},
		{"truncated body", io.ErrUnexpectedEOF, outbound.ErrAmbiguousGatewayOutcome},
		{"unknown", errors.New("something odd"), outbound.ErrAmbiguousGatewayOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("test", tt.err), tt.want)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classify("test", nil))
	})

	t.Run("already classified", func(t *testing.T) {
		err := ambiguous("test", "no usage")
		assert.Same(t, err, classify("test", err))
	})
}

func TestFirstText(t *testing.T) {
	assert.Equal(t, "", firstText(nil))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Q1: "), genai.Text("what?")}}},
		},
	}
	assert.Equal(t, "Q1: what?", firstText(resp))
}
