package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/quizforge/server/internal/model"
)

const (
	metadataAccountID = "account_id"
	stripeGrantPrefix = "stripe:"
)

// StripeParser verifies Stripe-Signature and turns a completed checkout or
// payment intent into a grant request. A checkout session and its payment
// intent describe one payment, so both are keyed by the payment intent id.
type StripeParser struct {
	secret string
}

// NewStripeParser creates a parser for the endpoint signing secret.
func NewStripeParser(secret string) *StripeParser {
	return &StripeParser{secret: secret}
}

// Parse verifies and parses a webhook body.
func (p *StripeParser) Parse(payload []byte, signature string) (*model.GrantRequest, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var (
		accountID string
		paymentID string
		cents     int64
		currency  stripe.Currency
	)

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
		}
		if cs.PaymentStatus != "" && cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil, fmt.Errorf("%w: checkout payment_status %q", ErrIgnored, cs.PaymentStatus)
		}
		accountID = cs.ClientReferenceID
		if accountID == "" {
			accountID = cs.Metadata[metadataAccountID]
		}
		cents, currency = cs.AmountTotal, cs.Currency
		paymentID = cs.ID
		if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
			paymentID = cs.PaymentIntent.ID
		}

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: payment intent: %v", ErrInvalidPayload, err)
		}
		accountID = pi.Metadata[metadataAccountID]
		cents, currency = pi.Amount, pi.Currency
		paymentID = pi.ID

	default:
		return nil, fmt.Errorf("%w: stripe event %q", ErrIgnored, event.Type)
	}

	if currency != "" && currency != stripe.CurrencyUSD {
		return nil, fmt.Errorf("%w: currency %q", ErrInvalidPayload, currency)
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: no payment reference on %s", ErrInvalidPayload, event.ID)
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: no account reference on %s", ErrInvalidPayload, event.ID)
	}

	return &model.GrantRequest{
		AccountID: accountID,
		Amount:    decimal.New(cents, -2),
		EventID:   stripeGrantPrefix + paymentID,
		Source:    model.GrantSourceStripe,
	}, nil
}
