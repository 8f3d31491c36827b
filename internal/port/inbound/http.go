package inbound

import "github.com/gin-gonic/gin"

// QuizHttpPort serves quiz generation.
type QuizHttpPort interface {
	RegisterRoutes(r *gin.RouterGroup)
	Generate(c *gin.Context)
}

// CreditsHttpPort serves the caller's balance and normalized payment events.
type CreditsHttpPort interface {
	RegisterRoutes(r *gin.RouterGroup)
	RegisterProtectedRoutes(r *gin.RouterGroup)
	GetBalance(c *gin.Context)
	GetTiers(c *gin.Context)
	HandleEvent(c *gin.Context)
}

// WebhookHttpPort receives vendor payment notifications.
type WebhookHttpPort interface {
	RegisterRoutes(r *gin.RouterGroup)
	HandlePayPal(c *gin.Context)
	HandleStripe(c *gin.Context)
}

// AdminHttpPort serves operator endpoints.
type AdminHttpPort interface {
	RegisterRoutes(r *gin.RouterGroup)
	ListDeficits(c *gin.Context)
	ListReconciliations(c *gin.Context)
	ResolveReconciliation(c *gin.Context)
	GrantCredits(c *gin.Context)
	GetAccountBalance(c *gin.Context)
}

// HealthHttpPort serves liveness and readiness.
type HealthHttpPort interface {
	RegisterRoutes(r gin.IRoutes)
	Health(c *gin.Context)
}
