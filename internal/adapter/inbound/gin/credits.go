package gin

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/server/internal/adapter/inbound/webhook"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/utils/middleware"
)

// WebhookSecretHeader authenticates normalized payment events.
const WebhookSecretHeader = "X-Webhook-Secret"

// creditsAdapter implements inbound.CreditsHttpPort.
type creditsAdapter struct {
	metering      inbound.MeteringDomain
	credit        inbound.CreditDomain
	webhookSecret string
}

// NewCreditsAdapter creates a new credits HTTP adapter.
func NewCreditsAdapter(metering inbound.MeteringDomain, credit inbound.CreditDomain, webhookSecret string) inbound.CreditsHttpPort {
	return &creditsAdapter{metering: metering, credit: credit, webhookSecret: webhookSecret}
}

// RegisterRoutes registers the public credits routes. Balance requires the
// caller to be authenticated by the group; events carry their own secret.
func (a *creditsAdapter) RegisterRoutes(r *gin.RouterGroup) {
	credits := r.Group("/credits")
	{
		credits.GET("/tiers", a.GetTiers)
		credits.POST("/events", middleware.SharedSecret(WebhookSecretHeader, a.webhookSecret), a.HandleEvent)
	}
}

// RegisterProtectedRoutes registers routes that need an authenticated account.
func (a *creditsAdapter) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/credits/balance", a.GetBalance)
}

func (a *creditsAdapter) GetBalance(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	balance, err := a.metering.Balance(c.Request.Context(), accountID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance})
}

func (a *creditsAdapter) GetTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": a.credit.Tiers()})
}

func (a *creditsAdapter) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		bindError(c, err)
		return
	}

	grant, err := webhook.ParseNormalized(body)
	if err != nil {
		respondParseError(c, err)
		return
	}
	issue(c, a.credit, *grant)
}
