package outbound

import "errors"

// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims represents the verified claims of an access token.
type TokenClaims struct {
	// AccountID is the ledger account the caller acts as (the "sub" claim).
	AccountID string
	Email     string
}

// TokenValidatorPort validates bearer tokens issued by the identity provider.
type TokenValidatorPort interface {
	ValidateAccessToken(token string) (*TokenClaims, error)
}
