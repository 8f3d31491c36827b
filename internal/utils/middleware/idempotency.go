package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/quizforge/server/internal/utils/errors"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from the cache.
	IdempotentReplayHeader = "Idempotent-Replayed"

	idempotencyKeyPrefix  = "quizforge:idempotency:"
	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyLockTTL    = 2 * time.Minute
	maxIdempotencyKeyLen  = 255
)

// IdempotencyConfig holds idempotency middleware configuration.
type IdempotencyConfig struct {
	TTL time.Duration
	// LockTTL bounds how long an in-flight request holds its key.
	LockTTL time.Duration
}

type idempotencyResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	BodyHash    string `json:"body_hash"`
	Body        []byte `json:"body"`
}

type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// POST. Keys are scoped to the account and route. Reusing a key with a
// different body is a 422. Server errors are not stored so the client can
// retry.
func Idempotency(redis goredis.UniversalClient, cfg IdempotencyConfig, log *zap.Logger) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultIdempotencyTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = idempotencyLockTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if redis == nil || c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			abortWithError(c, apperrors.BadRequest("Idempotency-Key too long"))
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c, key)
		bodyHash := bodyHashKey(c)

		cached, err := getCachedResponse(ctx, redis, cacheKey)
		switch {
		case err == nil:
			if cached.BodyHash != bodyHash {
				abortWithError(c, &apperrors.AppError{
					Code:       "IDEMPOTENCY_KEY_REUSED",
					Message:    "Idempotency-Key was used with a different request body",
					StatusCode: http.StatusUnprocessableEntity,
					Err:        apperrors.ErrConflict,
				})
				return
			}
			c.Header(IdempotentReplayHeader, "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		case !errors.Is(err, goredis.Nil):
			log.Warn("idempotency lookup failed, processing request", zap.Error(err))
			c.Next()
			return
		}

		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, "1", cfg.LockTTL).Result()
		if err != nil {
			log.Warn("idempotency lock failed, processing request", zap.Error(err))
			c.Next()
			return
		}
		if !locked {
			abortWithError(c, &apperrors.AppError{
				Code:       "REQUEST_IN_PROGRESS",
				Message:    "a request with this Idempotency-Key is already being processed",
				StatusCode: http.StatusConflict,
				Err:        apperrors.ErrConflict,
			})
			return
		}

		// The client may disconnect while the result still has to be stored.
		storeCtx := context.WithoutCancel(ctx)
		defer redis.Del(storeCtx, lockKey)

		w := &idempotencyResponseWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = w

		c.Next()

		status := w.Status()
		if status >= 500 {
			return
		}
		resp := &idempotencyResponse{
			StatusCode:  status,
			ContentType: w.Header().Get("Content-Type"),
			BodyHash:    bodyHash,
			Body:        w.body.Bytes(),
		}
		if err := cacheResponse(storeCtx, redis, cacheKey, resp, cfg.TTL); err != nil {
			log.Warn("store idempotent response", zap.Error(err))
		}
	}
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	return idempotencyCacheKeyFor(GetAccountID(c), c.Request.Method, c.FullPath(), key)
}

func idempotencyCacheKeyFor(accountID, method, route, key string) string {
	hash := sha256.Sum256([]byte(accountID + ":" + method + ":" + route + ":" + key))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

func getCachedResponse(ctx context.Context, redis goredis.UniversalClient, key string) (*idempotencyResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var resp idempotencyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func cacheResponse(ctx context.Context, redis goredis.UniversalClient, key string, resp *idempotencyResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return redis.Set(ctx, key, data, ttl).Err()
}

// bodyHashKey hashes the request body and restores it for the handler.
func bodyHashKey(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}
