package credit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Domain applies credit grants from payment events.
type Domain struct {
	store     outbound.LedgerStorePort
	publisher outbound.EventPublisherPort
	metrics   outbound.MetricsPort
	now       func() time.Time
	logger    *zap.Logger
}

// NewCreditDomain creates a new credit domain.
func NewCreditDomain(
	store outbound.LedgerStorePort,
	publisher outbound.EventPublisherPort,
	metrics outbound.MetricsPort,
	logger *zap.Logger,
) *Domain {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	return &Domain{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
		logger:    logger.Named("credit"),
	}
}

// Compile-time interface check
var _ inbound.CreditDomain = (*Domain)(nil)

// Issue credits the account for a payment, once per event id. The account
// is created on its first grant. A redelivered event reports
// IssueStatusAlreadyApplied and leaves the balance alone.
func (d *Domain) Issue(ctx context.Context, grant model.GrantRequest) (*model.IssueResult, error) {
	accountID := strings.TrimSpace(grant.AccountID)
	eventID := strings.TrimSpace(grant.EventID)
	if accountID == "" || eventID == "" {
		d.metrics.RecordGrant("invalid", 0)
		return nil, ErrInvalidGrant
	}

	credits, err := CreditsFor(grant.Amount)
	if err != nil {
		d.metrics.RecordGrant("invalid_amount", 0)
		d.logger.Warn("rejected credit grant",
			zap.String("account_id", accountID),
			zap.String("event_id", eventID),
			zap.String("amount", grant.Amount.String()),
		)
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, grant.Amount.String())
	}

	source := grant.Source
	if source == "" {
		source = model.GrantSourceAPI
	}

	balance, applied, err := d.store.ApplyGrant(ctx, &model.CreditGrant{
		EventID:   eventID,
		AccountID: accountID,
		Amount:    grant.Amount.StringFixed(2),
		Credits:   credits,
		Source:    source,
		CreatedAt: d.now().UTC(),
	})
	if err != nil {
		d.metrics.RecordGrant("error", 0)
		return nil, fmt.Errorf("apply grant: %w", err)
	}

	result := &model.IssueResult{
		Status:    model.IssueStatusApplied,
		AccountID: accountID,
		EventID:   eventID,
		Credits:   credits,
		Balance:   balance,
	}

	if !applied {
		result.Status = model.IssueStatusAlreadyApplied
		d.metrics.RecordGrant(string(result.Status), 0)
		d.logger.Info("credit grant already applied",
			zap.String("account_id", accountID),
			zap.String("event_id", eventID),
		)
		return result, nil
	}

	d.metrics.RecordGrant(string(result.Status), credits)
	d.logger.Info("credits issued",
		zap.String("account_id", accountID),
		zap.String("event_id", eventID),
		zap.String("source", string(source)),
		zap.Int64("credits", credits),
		zap.Int64("balance", balance),
	)
	if d.publisher != nil {
		d.publisher.Publish(ctx, events.NewCreditsIssuedEvent(accountID, eventID, string(source), credits, balance))
	}
	return result, nil
}

// Tiers returns the accepted payment tiers.
func (d *Domain) Tiers() []model.CreditTier {
	return Tiers()
}
