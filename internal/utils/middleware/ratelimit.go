package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizforge/server/internal/port/outbound"
	apperrors "github.com/quizforge/server/internal/utils/errors"
)

const (
	RateLimitRemaining = "X-RateLimit-Remaining"
	RateLimitLimit     = "X-RateLimit-Limit"
	RetryAfter         = "Retry-After"
)

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// KeyFunc derives the bucket. Defaults to the client IP.
	KeyFunc func(*gin.Context) string
}

// RateLimit rejects requests over the limit with 429. Limiter errors fail
// open and are logged.
func RateLimit(limiter outbound.RateLimiterPort, cfg RateLimitConfig, log *zap.Logger) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ByIP
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ratelimit")

	return func(c *gin.Context) {
		if limiter == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		ctx := c.Request.Context()

		allowed, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header(RateLimitLimit, strconv.Itoa(cfg.Limit))
		if remaining, err := limiter.GetRemaining(ctx, key, cfg.Limit, cfg.Window); err == nil {
			c.Header(RateLimitRemaining, strconv.Itoa(remaining))
		}

		if !allowed {
			c.Header(RetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			abortWithError(c, apperrors.RateLimited(""))
			return
		}

		c.Next()
	}
}

// ByIP buckets by client IP.
func ByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByAccount buckets by authenticated account per route, falling back to IP.
func ByAccount(c *gin.Context) string {
	if accountID := GetAccountID(c); accountID != "" {
		return "account:" + accountID + ":" + c.FullPath()
	}
	return ByIP(c)
}
