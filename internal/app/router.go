package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	ginadapter "github.com/quizforge/server/internal/adapter/inbound/gin"
	"github.com/quizforge/server/internal/adapter/inbound/webhook"
	redisadapter "github.com/quizforge/server/internal/adapter/outbound/redis"
	"github.com/quizforge/server/internal/infra/httpclient"
	"github.com/quizforge/server/internal/utils/middleware"
)

// setupRouter creates the gin engine with the global middleware chain.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.CORS(a.config.Server.CORSOrigins))
	if a.tracer.Enabled() {
		r.Use(otelgin.Middleware(a.config.Tracing.ServiceName))
	}
	r.Use(middleware.Metrics(a.metrics))

	if a.redis != nil && a.config.RateLimit.Enabled {
		limiter := redisadapter.NewRateLimiter(a.redis)
		r.Use(middleware.RateLimit(limiter, middleware.RateLimitConfig{
			Limit:   a.config.RateLimit.GlobalLimit,
			Window:  a.config.RateLimit.GlobalWindow,
			KeyFunc: middleware.ByIP,
		}, a.logger))
	}

	ginadapter.NewHealthAdapter(a.ledger.Store, a.ledger.Driver).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	return r
}

// registerRoutes mounts every HTTP adapter on its route group.
func (a *App) registerRoutes() {
	cfg := a.config
	v1 := a.router.Group("/api/v1")

	public := v1.Group("")
	protected := v1.Group("", middleware.RequireAuth(a.tokens))
	admin := v1.Group("/admin", middleware.AdminAuth(cfg.Admin.TokenHash))

	quizGroup := protected.Group("")
	if a.redis != nil {
		if cfg.RateLimit.Enabled {
			limiter := redisadapter.NewRateLimiter(a.redis)
			quizGroup.Use(middleware.RateLimit(limiter, middleware.RateLimitConfig{
				Limit:   cfg.RateLimit.QuizLimit,
				Window:  cfg.RateLimit.QuizWindow,
				KeyFunc: middleware.ByAccount,
			}, a.logger))
		}
		quizGroup.Use(middleware.Idempotency(a.redis, middleware.IdempotencyConfig{
			TTL: cfg.RateLimit.IdempotencyTTL,
		}, a.logger))
	}
	ginadapter.NewQuizAdapter(a.quizDomain).RegisterRoutes(quizGroup)

	credits := ginadapter.NewCreditsAdapter(a.meteringDomain, a.creditDomain, cfg.Webhook.Secret)
	credits.RegisterRoutes(public)
	credits.RegisterProtectedRoutes(protected)

	var paypal *webhook.PayPalParser
	if cfg.PayPal.VerifyURL != "" || cfg.PayPal.ReceiverEmail != "" {
		paypal = webhook.NewPayPalParser(cfg.PayPal.VerifyURL, cfg.PayPal.ReceiverEmail, httpclient.New(cfg.HTTPClient, httpclient.WithTracing(cfg.Tracing.Enabled)))
	}
	var stripe *webhook.StripeParser
	if cfg.Stripe.WebhookSecret != "" {
		stripe = webhook.NewStripeParser(cfg.Stripe.WebhookSecret)
	}
	ginadapter.NewWebhookAdapter(a.creditDomain, paypal, stripe).RegisterRoutes(a.router.Group(""))

	ginadapter.NewAdminAdapter(a.meteringDomain, a.creditDomain).RegisterRoutes(admin)
}
