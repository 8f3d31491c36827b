package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{Code: "TEST", Message: "test message"}
		assert.Equal(t, "test message", err.Error())
	})

	t.Run("Error includes cause", func(t *testing.T) {
		err := Internal("settle failed", errors.New("db down"))
		assert.Contains(t, err.Error(), "settle failed")
		assert.Contains(t, err.Error(), "db down")
	})

	t.Run("Is matches by code", func(t *testing.T) {
		assert.True(t, errors.Is(InsufficientCredits("x"), InsufficientCredits("")))
		assert.False(t, errors.Is(InsufficientCredits("x"), BadRequest("x")))
	})

	t.Run("ToResponse carries details", func(t *testing.T) {
		resp := GatewayAmbiguous("").WithDetail("reservation_id", "r1").ToResponse()
		assert.Equal(t, "GATEWAY_OUTCOME_UNKNOWN", resp.Error.Code)
		assert.Equal(t, "r1", resp.Error.Details["reservation_id"])
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
		class  error
	}{
		{"not found", NotFound("account"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"unauthorized", Unauthorized(""), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden(""), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"bad request", BadRequest("text is required"), "BAD_REQUEST", http.StatusBadRequest, ErrBadRequest},
		{"invalid amount", InvalidAmount("3.33 matches no tier"), "INVALID_AMOUNT", http.StatusBadRequest, ErrBadRequest},
		{"conflict", Conflict("in progress"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"insufficient", InsufficientCredits(""), "INSUFFICIENT_CREDITS", http.StatusPaymentRequired, ErrPaymentRequired},
		{"rate limited", RateLimited(""), "RATE_LIMITED", http.StatusTooManyRequests, ErrRateLimited},
		{"gateway failure", GatewayFailure(""), "GATEWAY_FAILURE", http.StatusBadGateway, ErrUpstream},
		{"gateway ambiguous", GatewayAmbiguous(""), "GATEWAY_OUTCOME_UNKNOWN", http.StatusGatewayTimeout, ErrUpstreamIndefinite},
		{"unavailable", ServiceUnavailable(""), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Message)
			assert.ErrorIs(t, tt.err, tt.class)
		})
	}

	t.Run("not found message", func(t *testing.T) {
		assert.Equal(t, "account not found", NotFound("account").Message)
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, GatewayFailure("").Retryable())
	assert.True(t, RateLimited("").Retryable())
	assert.False(t, GatewayAmbiguous("").Retryable())
	assert.False(t, BadRequest("x").Retryable())
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InsufficientCredits(""), http.StatusPaymentRequired},
		{"wrapped app error", fmt.Errorf("generate: %w", GatewayFailure("")), http.StatusBadGateway},
		{"class sentinel", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"upstream indefinite", ErrUpstreamIndefinite, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetStatusCode(tt.err))
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x")))
	assert.False(t, IsNotFound(BadRequest("x")))
	assert.True(t, IsRateLimited(RateLimited("")))
}
