package gin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizforge/server/internal/adapter/inbound/webhook"
	"github.com/quizforge/server/internal/domain/credit"
	"github.com/quizforge/server/internal/domain/metering"
	"github.com/quizforge/server/internal/domain/quiz"
	"github.com/quizforge/server/internal/port/outbound"
	"github.com/quizforge/server/internal/shared/logger"
	apperrors "github.com/quizforge/server/internal/utils/errors"
)

// errorMapping converts a domain error class into its HTTP form.
type errorMapping struct {
	target error
	build  func(err error) *apperrors.AppError
}

// errorTable is checked in order; the first match wins.
var errorTable = []errorMapping{
	{quiz.ErrEmptyText, func(error) *apperrors.AppError { return apperrors.BadRequest("text is required") }},
	{credit.ErrInvalidAmount, func(err error) *apperrors.AppError { return apperrors.InvalidAmount(err.Error()) }},
	{credit.ErrInvalidGrant, func(error) *apperrors.AppError {
		return apperrors.BadRequest("account_id and event_id are required")
	}},
	{metering.ErrInvalidCost, func(err error) *apperrors.AppError { return apperrors.BadRequest(err.Error()) }},
	{metering.ErrInsufficientCredits, func(error) *apperrors.AppError { return apperrors.InsufficientCredits("") }},
	{metering.ErrAccountNotFound, func(error) *apperrors.AppError { return apperrors.NotFound("account") }},
	{metering.ErrReservationNotFound, func(error) *apperrors.AppError { return apperrors.NotFound("reservation") }},
	{metering.ErrReservationClosed, func(error) *apperrors.AppError { return apperrors.Conflict("reservation already closed") }},
	{metering.ErrNotAmbiguous, func(error) *apperrors.AppError {
		return apperrors.Conflict("reservation is not awaiting reconciliation")
	}},
	{metering.ErrReservationMismatch, func(error) *apperrors.AppError { return apperrors.Forbidden("reservation belongs to another account") }},
	{outbound.ErrGatewayFailure, func(error) *apperrors.AppError { return apperrors.GatewayFailure("") }},
	{outbound.ErrAmbiguousGatewayOutcome, func(error) *apperrors.AppError { return apperrors.GatewayAmbiguous("") }},
	{webhook.ErrInvalidPayload, func(err error) *apperrors.AppError { return apperrors.BadRequest(err.Error()) }},
	{webhook.ErrVerificationFailed, func(error) *apperrors.AppError { return apperrors.BadRequest("webhook verification failed") }},
	{context.DeadlineExceeded, func(error) *apperrors.AppError {
		return &apperrors.AppError{Code: "TIMEOUT", Message: "request timed out", StatusCode: http.StatusGatewayTimeout}
	}},
}

// toAppError maps err through errorTable. Unknown errors become a 500.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			mapped := m.build(err)
			var outcome *quiz.OutcomeError
			if errors.As(err, &outcome) {
				mapped.WithDetail("reservation_id", outcome.ReservationID)
			}
			return mapped.WithError(err)
		}
	}
	return apperrors.Internal("internal server error", err)
}

// handleError writes the error response and logs server-side failures.
func handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), zap.NewNop()).Error("request failed",
			zap.Int("status", appErr.StatusCode),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// bindError reports a malformed request body.
func bindError(c *gin.Context, err error) {
	handleError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
}
