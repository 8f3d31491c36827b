package metering

import (
	"errors"

	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
)

// Domain errors for metering.
var (
	// Authorization errors
	ErrAccountNotFound     = outbound.ErrAccountNotFound
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidCost         = errors.New("cost must not be negative")

	// Settlement errors
	ErrReservationNotFound = outbound.ErrReservationNotFound
	ErrReservationClosed   = outbound.ErrReservationClosed
	ErrReservationMismatch = outbound.ErrReservationMismatch
	ErrNotAmbiguous        = errors.New("reservation is not awaiting reconciliation")

	// ErrBillingDeficit is reported by Settlement.Err, never returned from Settle.
	ErrBillingDeficit = model.ErrBillingDeficit
)
