package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizforge/server/internal/port/outbound"
	"github.com/quizforge/server/internal/utils/metrics"
	"github.com/quizforge/server/internal/utils/requestctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateAccessToken(token string) (*outbound.TokenClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.TokenClaims), args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimiter) AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, n, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Int(0), args.Error(1)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), requestctx.RequestID(c.Request.Context()))
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates new request ID when not provided", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
		assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := serve(router, req)
		assert.Equal(t, "req-123", w.Body.String())
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		w := serve(router, req)
		assert.Len(t, w.Body.String(), 36)
	})
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"success as info", http.StatusOK, zapcore.InfoLevel},
		{"4xx as warning", http.StatusPaymentRequired, zapcore.WarnLevel},
		{"5xx as error", http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(RequestID(), Logging(zap.New(core)))
			router.GET("/test", func(c *gin.Context) {
				c.Set(AccountIDKey, "u1")
				c.Status(tt.status)
			})

			serve(router, httptest.NewRequest(http.MethodGet, "/test?x=1", nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			fields := entry.ContextMap()
			assert.EqualValues(t, tt.status, fields["status"])
			assert.Equal(t, "/test", fields["path"])
			assert.Equal(t, "x=1", fields["query"])
			assert.Equal(t, "u1", fields["account_id"])
			assert.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequireAuth(t *testing.T) {
	newRouter := func(v outbound.TokenValidatorPort) *gin.Engine {
		router := gin.New()
		router.Use(RequireAuth(v))
		router.GET("/me", func(c *gin.Context) {
			assert.Equal(t, GetAccountID(c), requestctx.AccountID(c.Request.Context()))
			c.String(http.StatusOK, GetAccountID(c))
		})
		return router
	}

	t.Run("valid token binds account", func(t *testing.T) {
		v := new(MockTokenValidator)
		v.On("ValidateAccessToken", "good").Return(&outbound.TokenClaims{AccountID: "u1"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, "Bearer good")
		w := serve(newRouter(v), req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", w.Body.String())
		v.AssertExpectations(t)
	})

	t.Run("missing header", func(t *testing.T) {
		v := new(MockTokenValidator)
		w := serve(newRouter(v), httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		v.AssertNotCalled(t, "ValidateAccessToken", mock.Anything)
	})

	t.Run("invalid token", func(t *testing.T) {
		v := new(MockTokenValidator)
		v.On("ValidateAccessToken", "bad").Return(nil, outbound.ErrInvalidToken)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, "Bearer bad")
		w := serve(newRouter(v), req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("op-token"), bcrypt.MinCost)
	require.NoError(t, err)

	newRouter := func(h string) *gin.Engine {
		router := gin.New()
		router.Use(AdminAuth(h))
		router.GET("/admin", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return router
	}

	tests := []struct {
		name   string
		hash   string
		header string
		value  string
		want   int
	}{
		{"admin header", string(hash), AdminTokenHeader, "op-token", http.StatusNoContent},
		{"bearer", string(hash), AuthorizationHeader, "Bearer op-token", http.StatusNoContent},
		{"wrong token", string(hash), AdminTokenHeader, "nope", http.StatusForbidden},
		{"missing token", string(hash), "", "", http.StatusUnauthorized},
		{"disabled", "", AdminTokenHeader, "op-token", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.want, serve(newRouter(tt.hash), req).Code)
		})
	}

	t.Run("HashAdminToken round trip", func(t *testing.T) {
		h, err := HashAdminToken("secret")
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("secret")))
	})
}

func TestSharedSecret(t *testing.T) {
	router := gin.New()
	router.POST("/events", SharedSecret("X-Webhook-Secret", "s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Webhook-Secret", "s3cret")
	assert.Equal(t, http.StatusOK, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Webhook-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(router, req).Code)

	empty := gin.New()
	empty.POST("/events", SharedSecret("X-Webhook-Secret", ""), func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(empty, req).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := RateLimitConfig{Limit: 2, Window: time.Minute, KeyFunc: ByAccount}

	newRouter := func(l outbound.RateLimiterPort) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) { c.Set(AccountIDKey, "u1"); c.Next() })
		router.POST("/quiz", RateLimit(l, cfg, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	t.Run("allowed", func(t *testing.T) {
		l := new(MockRateLimiter)
		l.On("Allow", mock.Anything, "account:u1:/quiz", 2, time.Minute).Return(true, nil)
		l.On("GetRemaining", mock.Anything, "account:u1:/quiz", 2, time.Minute).Return(1, nil)

		w := serve(newRouter(l), httptest.NewRequest(http.MethodPost, "/quiz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get(RateLimitRemaining))
		l.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		l := new(MockRateLimiter)
		l.On("Allow", mock.Anything, mock.Anything, 2, time.Minute).Return(false, nil)
		l.On("GetRemaining", mock.Anything, mock.Anything, 2, time.Minute).Return(0, nil)

		w := serve(newRouter(l), httptest.NewRequest(http.MethodPost, "/quiz", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get(RetryAfter))
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		l := new(MockRateLimiter)
		l.On("Allow", mock.Anything, mock.Anything, 2, time.Minute).Return(false, errors.New("redis down"))

		w := serve(newRouter(l), httptest.NewRequest(http.MethodPost, "/quiz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ByAccount falls back to IP", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.RemoteAddr = "10.0.0.1:1234"
		assert.Equal(t, "ip:10.0.0.1", ByAccount(c))
	})
}

func TestIdempotency(t *testing.T) {
	newRouter := func(t *testing.T) (*gin.Engine, *atomic.Int32, *miniredis.Miniredis) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		var calls atomic.Int32
		router := gin.New()
		router.Use(func(c *gin.Context) { c.Set(AccountIDKey, "u1"); c.Next() })
		router.Use(Idempotency(client, IdempotencyConfig{TTL: time.Hour}, zap.NewNop()))
		router.POST("/quiz", func(c *gin.Context) {
			n := calls.Add(1)
			if c.Query("fail") != "" {
				c.JSON(http.StatusBadGateway, gin.H{"n": n})
				return
			}
			c.JSON(http.StatusOK, gin.H{"n": n})
		})
		return router, &calls, mr
	}

	post := func(path, key, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		return req
	}

	t.Run("replays stored response", func(t *testing.T) {
		router, calls, _ := newRouter(t)

		first := serve(router, post("/quiz", "k1", `{"text":"a"}`))
		second := serve(router, post("/quiz", "k1", `{"text":"a"}`))

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("different body is rejected", func(t *testing.T) {
		router, _, _ := newRouter(t)

		serve(router, post("/quiz", "k1", `{"text":"a"}`))
		w := serve(router, post("/quiz", "k1", `{"text":"b"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("no key passes through", func(t *testing.T) {
		router, calls, _ := newRouter(t)

		serve(router, post("/quiz", "", `{}`))
		serve(router, post("/quiz", "", `{}`))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("server errors are not stored", func(t *testing.T) {
		router, calls, _ := newRouter(t)

		serve(router, post("/quiz?fail=1", "k2", `{}`))
		serve(router, post("/quiz?fail=1", "k2", `{}`))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("in-flight key conflicts", func(t *testing.T) {
		router, _, mr := newRouter(t)
		require.NoError(t, mr.Set(idempotencyCacheKeyFor("u1", http.MethodPost, "/quiz", "k3")+":lock", "1"))

		w := serve(router, post("/quiz", "k3", `{}`))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("redis unavailable fails open", func(t *testing.T) {
		router, calls, mr := newRouter(t)
		mr.Close()

		w := serve(router, post("/quiz", "k4", `{}`))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestMetrics(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/api/v1/credits/balance", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/credits/balance", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "4xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestCORS(t *testing.T) {
	preflight := func(h gin.HandlerFunc, origin string) *httptest.ResponseRecorder {
		r := gin.New()
		r.Use(h)
		r.POST("/api/v1/quizzes", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/quizzes", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("wildcard allows any origin", func(t *testing.T) {
		w := preflight(CORS([]string{"*"}), "https://quiz.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("allowlist with credentials", func(t *testing.T) {
		w := preflight(CORS([]string{"https://quiz.example"}), "https://quiz.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://quiz.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted origin rejected", func(t *testing.T) {
		w := preflight(CORS([]string{"https://quiz.example"}), "https://evil.example")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
