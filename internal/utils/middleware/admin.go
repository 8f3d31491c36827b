package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/quizforge/server/internal/utils/errors"
)

// AdminTokenHeader carries the operator token on admin routes.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth accepts requests whose X-Admin-Token (or bearer token) matches
// the bcrypt hash. An empty hash disables the admin API.
func AdminAuth(tokenHash string) gin.HandlerFunc {
	hash := []byte(tokenHash)
	return func(c *gin.Context) {
		if len(hash) == 0 {
			abortWithError(c, apperrors.Forbidden("admin API disabled"))
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if token == "" {
			token = extractBearerToken(c)
		}
		if token == "" {
			abortWithError(c, apperrors.Unauthorized("admin token required"))
			return
		}
		if bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			abortWithError(c, apperrors.Forbidden("invalid admin token"))
			return
		}
		c.Next()
	}
}

// HashAdminToken returns the bcrypt hash stored in admin.token_hash.
func HashAdminToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// SharedSecret guards machine-to-machine endpoints with a static header value.
// An empty secret rejects every request.
func SharedSecret(header, secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(header))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			abortWithError(c, apperrors.Unauthorized("invalid webhook secret"))
			return
		}
		c.Next()
	}
}
