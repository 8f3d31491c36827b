package credit

import "errors"

// Domain errors for credit issuance.
var (
	ErrInvalidAmount = errors.New("amount does not match a credit tier")
	ErrInvalidGrant  = errors.New("grant requires an account and an event id")
)
