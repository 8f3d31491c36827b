package quiz

import (
	"errors"
	"fmt"
)

// Domain errors for quiz generation.
var (
	ErrEmptyText       = errors.New("text is required")
	ErrInvalidTemplate = errors.New("invalid prompt template")
)

// OutcomeError is returned when the completion call failed after a
// reservation was opened. It carries the reservation id so support can
// trace ambiguous charges.
type OutcomeError struct {
	ReservationID string
	Err           error
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("reservation %s: %v", e.ReservationID, e.Err)
}

func (e *OutcomeError) Unwrap() error {
	return e.Err
}
