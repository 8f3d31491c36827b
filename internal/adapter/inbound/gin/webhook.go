package gin

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizforge/server/internal/adapter/inbound/webhook"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/shared/logger"
)

const maxWebhookBody = 64 << 10

// webhookAdapter implements inbound.WebhookHttpPort.
type webhookAdapter struct {
	credit inbound.CreditDomain
	paypal *webhook.PayPalParser
	stripe *webhook.StripeParser
}

// NewWebhookAdapter creates a new webhook HTTP adapter. A nil parser leaves
// its route unregistered.
func NewWebhookAdapter(credit inbound.CreditDomain, paypal *webhook.PayPalParser, stripe *webhook.StripeParser) inbound.WebhookHttpPort {
	return &webhookAdapter{credit: credit, paypal: paypal, stripe: stripe}
}

// RegisterRoutes registers webhook routes.
func (a *webhookAdapter) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	if a.paypal != nil {
		webhooks.POST("/paypal", a.HandlePayPal)
	}
	if a.stripe != nil {
		webhooks.POST("/stripe", a.HandleStripe)
	}
}

func (a *webhookAdapter) HandlePayPal(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		bindError(c, err)
		return
	}

	grant, err := a.paypal.Parse(c.Request.Context(), body)
	if err != nil {
		respondParseError(c, err)
		return
	}
	issue(c, a.credit, *grant)
}

func (a *webhookAdapter) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		bindError(c, err)
		return
	}

	grant, err := a.stripe.Parse(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondParseError(c, err)
		return
	}
	issue(c, a.credit, *grant)
}

// respondParseError acknowledges ignorable events with 200 so the vendor
// stops redelivering them, and rejects everything else.
func respondParseError(c *gin.Context, err error) {
	if errors.Is(err, webhook.ErrIgnored) {
		logger.FromContext(c.Request.Context(), nil).Info("payment event ignored", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	handleError(c, err)
}

// issue applies the grant and reports the outcome. A redelivered event is a
// 200 with status already_applied.
func issue(c *gin.Context, credit inbound.CreditDomain, grant model.GrantRequest) {
	result, err := credit.Issue(c.Request.Context(), grant)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
