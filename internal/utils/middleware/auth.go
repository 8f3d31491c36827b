package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/server/internal/port/outbound"
	apperrors "github.com/quizforge/server/internal/utils/errors"
	"github.com/quizforge/server/internal/utils/requestctx"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// AccountIDKey is the gin context key for the authenticated account.
	AccountIDKey = "account_id"
	// EmailKey is the gin context key for email.
	EmailKey = "email"
)

// RequireAuth validates the bearer token and binds the request to the
// account named by its subject.
func RequireAuth(validator outbound.TokenValidatorPort) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortWithError(c, apperrors.Unauthorized("authorization header required"))
			return
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			abortWithError(c, apperrors.Unauthorized("invalid or expired token"))
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(EmailKey, claims.Email)
		c.Request = c.Request.WithContext(requestctx.WithAccountID(c.Request.Context(), claims.AccountID))

		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
}

// GetAccountID returns the authenticated account, or "".
func GetAccountID(c *gin.Context) string {
	return c.GetString(AccountIDKey)
}

// IsAuthenticated returns true if an account is bound to the request.
func IsAuthenticated(c *gin.Context) bool {
	return GetAccountID(c) != ""
}

func abortWithError(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
