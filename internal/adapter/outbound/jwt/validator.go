package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizforge/server/internal/port/outbound"
)

// Config holds token settings. Issuer is optional.
type Config struct {
	Secret string
	Issuer string
}

// Manager validates HS256 access tokens. The "sub" claim names the ledger
// account.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager creates a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Manager{secret: []byte(cfg.Secret), issuer: cfg.Issuer}, nil
}

var _ outbound.TokenValidatorPort = (*Manager)(nil)

// ValidateAccessToken parses and verifies a token.
func (m *Manager) ValidateAccessToken(tokenString string) (*outbound.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", outbound.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, outbound.ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", outbound.ErrInvalidToken)
	}
	email, _ := claims["email"].(string)

	return &outbound.TokenClaims{AccountID: sub, Email: email}, nil
}

// GenerateAccessToken signs a token for accountID valid for ttl.
func (m *Manager) GenerateAccessToken(accountID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": accountID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
