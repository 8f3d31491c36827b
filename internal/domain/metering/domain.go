package metering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/port/outbound"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Config holds metering settings.
type Config struct {
	// ReservationTTL bounds how long an authorization waits for settlement
	// before the sweeper expires it.
	ReservationTTL time.Duration
}

// Domain implements the metering core. It holds no balance state of its
// own: every operation reads and writes through the ledger store.
type Domain struct {
	store     outbound.LedgerStorePort
	publisher outbound.EventPublisherPort
	metrics   outbound.MetricsPort
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewMeteringDomain creates a new metering domain.
func NewMeteringDomain(
	store outbound.LedgerStorePort,
	publisher outbound.EventPublisherPort,
	metrics outbound.MetricsPort,
	cfg Config,
	logger *zap.Logger,
) *Domain {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 5 * time.Minute
	}
	return &Domain{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.Named("metering"),
	}
}

// Compile-time interface check
var _ inbound.MeteringDomain = (*Domain)(nil)

// --- Authorization ---

// Authorize confirms the account can cover estimatedCost and opens a
// pending reservation. Nothing is deducted until Settle.
// An estimate of zero only checks that the account exists.
func (d *Domain) Authorize(ctx context.Context, accountID string, estimatedCost int64) (*model.Reservation, error) {
	if estimatedCost < 0 {
		d.metrics.RecordAuthorization("invalid")
		return nil, ErrInvalidCost
	}
	if strings.TrimSpace(accountID) == "" {
		d.metrics.RecordAuthorization("account_not_found")
		return nil, ErrAccountNotFound
	}

	balance, err := d.store.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			d.metrics.RecordAuthorization("account_not_found")
			return nil, ErrAccountNotFound
		}
		d.metrics.RecordAuthorization("error")
		return nil, fmt.Errorf("get balance: %w", err)
	}

	if balance < estimatedCost {
		d.metrics.RecordAuthorization("insufficient")
		return nil, fmt.Errorf("%w: balance %d, estimated %d", ErrInsufficientCredits, balance, estimatedCost)
	}

	now := d.now().UTC()
	reservation := &model.Reservation{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		EstimatedCost: estimatedCost,
		Status:        model.ReservationStatusPending,
		ExpiresAt:     now.Add(d.cfg.ReservationTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.store.CreateReservation(ctx, reservation); err != nil {
		d.metrics.RecordAuthorization("error")
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	d.metrics.RecordAuthorization("authorized")
	d.logger.Debug("authorized",
		zap.String("account_id", accountID),
		zap.String("reservation_id", reservation.ID),
		zap.Int64("estimated_cost", estimatedCost),
		zap.Int64("balance", balance),
	)
	return reservation, nil
}

// --- Settlement ---

// Settle deducts actualCost for the reservation. If the balance no longer
// covers it, the balance floors at zero and the shortfall is recorded as a
// billing deficit; the error stays nil and Settlement.Err reports it.
// Settling an already settled reservation returns the recorded outcome.
func (d *Domain) Settle(ctx context.Context, accountID, reservationID string, actualCost int64) (*model.Settlement, error) {
	if actualCost < 0 {
		d.metrics.RecordSettlement("invalid", 0)
		return nil, ErrInvalidCost
	}

	settlement, applied, err := d.store.SettleReservation(ctx, outbound.SettleParams{
		ReservationID: reservationID,
		AccountID:     accountID,
		ActualCost:    actualCost,
		At:            d.now().UTC(),
	})
	if err != nil {
		d.metrics.RecordSettlement(settleErrorResult(err), 0)
		return nil, fmt.Errorf("settle reservation %s: %w", reservationID, err)
	}

	if !applied {
		d.metrics.RecordSettlement("duplicate", 0)
		d.logger.Debug("settlement already recorded",
			zap.String("reservation_id", reservationID),
			zap.Int64("actual_cost", settlement.ActualCost),
		)
		return settlement, nil
	}

	if settlement.HasDeficit() {
		d.metrics.RecordSettlement("deficit", settlement.Deficit)
		d.logger.Warn("billing deficit recorded",
			zap.String("account_id", accountID),
			zap.String("reservation_id", reservationID),
			zap.Int64("actual_cost", actualCost),
			zap.Int64("charged", settlement.Charged),
			zap.Int64("shortfall", settlement.Deficit),
		)
		d.publish(ctx, events.NewDeficitRecordedEvent(accountID, reservationID, actualCost, settlement.Deficit))
		return settlement, nil
	}

	d.metrics.RecordSettlement("settled", 0)
	d.logger.Debug("settled",
		zap.String("account_id", accountID),
		zap.String("reservation_id", reservationID),
		zap.Int64("actual_cost", actualCost),
		zap.Int64("balance", settlement.Balance),
	)
	return settlement, nil
}

// Abandon closes a reservation whose operation incurred no cost.
// Abandoning a closed reservation is a no-op.
func (d *Domain) Abandon(ctx context.Context, reservationID string) error {
	closed, err := d.store.AbandonReservation(ctx, reservationID, d.now().UTC())
	if err != nil {
		return fmt.Errorf("abandon reservation %s: %w", reservationID, err)
	}
	if closed {
		d.logger.Debug("reservation abandoned", zap.String("reservation_id", reservationID))
	}
	return nil
}

// FlagAmbiguous queues a reservation whose cost is unknown for deferred
// reconciliation. The reservation stays billable.
func (d *Domain) FlagAmbiguous(ctx context.Context, reservationID, reason string) error {
	reservation, err := d.store.GetReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("get reservation %s: %w", reservationID, err)
	}

	queued, err := d.store.MarkAmbiguous(ctx, reservationID, reason, d.now().UTC())
	if err != nil {
		return fmt.Errorf("mark reservation %s ambiguous: %w", reservationID, err)
	}
	if !queued {
		return nil
	}

	d.logger.Warn("gateway outcome queued for reconciliation",
		zap.String("account_id", reservation.AccountID),
		zap.String("reservation_id", reservationID),
		zap.Int64("estimated_cost", reservation.EstimatedCost),
		zap.String("reason", reason),
	)
	d.publish(ctx, events.NewAmbiguousQueuedEvent(reservation.AccountID, reservationID, reason))
	return nil
}

// --- Queries ---

// Balance returns the current balance, read through the store.
func (d *Domain) Balance(ctx context.Context, accountID string) (int64, error) {
	balance, err := d.store.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// ListAmbiguous lists reconciliation queue entries, oldest first.
func (d *Domain) ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error) {
	return d.store.ListAmbiguous(ctx, clampLimit(limit), includeResolved)
}

// ListDeficits lists recorded billing deficits, newest first.
func (d *Domain) ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error) {
	return d.store.ListDeficits(ctx, clampLimit(limit))
}

func (d *Domain) publish(ctx context.Context, event events.Event) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(ctx, event)
}

func settleErrorResult(err error) string {
	switch {
	case errors.Is(err, ErrReservationNotFound):
		return "not_found"
	case errors.Is(err, ErrReservationMismatch):
		return "mismatch"
	case errors.Is(err, ErrReservationClosed):
		return "closed"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	default:
		return "error"
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
