package webhook

import "errors"

var (
	// ErrIgnored marks a well-formed event that does not credit an account.
	ErrIgnored = errors.New("event ignored")
	// ErrInvalidPayload marks a malformed or incomplete event.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrVerificationFailed marks an event whose authenticity could not be established.
	ErrVerificationFailed = errors.New("webhook verification failed")
)
