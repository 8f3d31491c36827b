package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTP-level error classes.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal error")
	ErrPaymentRequired    = errors.New("payment required")
	ErrRateLimited        = errors.New("rate limited")
	ErrUpstream           = errors.New("upstream failure")
	ErrUpstreamIndefinite = errors.New("upstream outcome unknown")
	ErrServiceUnavail     = errors.New("service unavailable")
)

// AppError is an error with an HTTP status and a stable code.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, otherwise defers to the wrapped error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the body of ErrorResponse.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToResponse converts the error to its JSON envelope.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
		},
	}
}

// WithDetail sets one detail field.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithError sets the underlying cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Retryable reports whether the client may safely retry.
func (e *AppError) Retryable() bool {
	v, _ := e.Details["retryable"].(bool)
	return v
}

func newAppError(code, message string, status int, class error) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status, Err: class}
}

// NotFound creates a 404 for resource.
func NotFound(resource string) *AppError {
	return newAppError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, ErrNotFound)
}

// Unauthorized creates a 401.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return newAppError("UNAUTHORIZED", message, http.StatusUnauthorized, ErrUnauthorized)
}

// Forbidden creates a 403.
func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return newAppError("FORBIDDEN", message, http.StatusForbidden, ErrForbidden)
}

// BadRequest creates a 400.
func BadRequest(message string) *AppError {
	return newAppError("BAD_REQUEST", message, http.StatusBadRequest, ErrBadRequest)
}

// InvalidAmount creates a 400 for a payment amount that matches no tier.
func InvalidAmount(message string) *AppError {
	return newAppError("INVALID_AMOUNT", message, http.StatusBadRequest, ErrBadRequest)
}

// Conflict creates a 409.
func Conflict(message string) *AppError {
	return newAppError("CONFLICT", message, http.StatusConflict, ErrConflict)
}

// InsufficientCredits creates a 402.
func InsufficientCredits(message string) *AppError {
	if message == "" {
		message = "insufficient credits"
	}
	return newAppError("INSUFFICIENT_CREDITS", message, http.StatusPaymentRequired, ErrPaymentRequired)
}

// RateLimited creates a 429.
func RateLimited(message string) *AppError {
	if message == "" {
		message = "too many requests"
	}
	return newAppError("RATE_LIMITED", message, http.StatusTooManyRequests, ErrRateLimited).
		WithDetail("retryable", true)
}

// GatewayFailure creates a retryable 502: the upstream call definitely did
// not consume anything.
func GatewayFailure(message string) *AppError {
	if message == "" {
		message = "generation service unavailable"
	}
	return newAppError("GATEWAY_FAILURE", message, http.StatusBadGateway, ErrUpstream).
		WithDetail("retryable", true)
}

// GatewayAmbiguous creates a 504 for an upstream call whose outcome is unknown.
func GatewayAmbiguous(message string) *AppError {
	if message == "" {
		message = "generation outcome unknown, queued for reconciliation"
	}
	return newAppError("GATEWAY_OUTCOME_UNKNOWN", message, http.StatusGatewayTimeout, ErrUpstreamIndefinite)
}

// Internal creates a 500.
func Internal(message string, err error) *AppError {
	return newAppError("INTERNAL_ERROR", message, http.StatusInternalServerError, err)
}

// ServiceUnavailable creates a 503.
func ServiceUnavailable(message string) *AppError {
	if message == "" {
		message = "service temporarily unavailable"
	}
	return newAppError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// GetStatusCode returns the HTTP status for err.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrUpstreamIndefinite):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound checks for a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited checks for a rate limited error.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
