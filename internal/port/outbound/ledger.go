package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/quizforge/server/internal/model"
)

// Ledger store errors. Adapters return these unwrapped or wrapped with %w.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationClosed   = errors.New("reservation already closed")
	ErrReservationMismatch = errors.New("reservation belongs to another account")
	ErrConcurrentUpdate    = errors.New("concurrent balance update, retry")
)

// SettleParams carries one settlement request to the store.
type SettleParams struct {
	ReservationID string
	AccountID     string
	ActualCost    int64
	At            time.Time
}

// LedgerStorePort is the durable ledger. Every mutating method is a single
// atomic unit at the store: per-account balance changes are linearizable
// without application-level locks.
type LedgerStorePort interface {
	// GetBalance returns the current balance or ErrAccountNotFound.
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// CreateReservation stores a new pending reservation.
	CreateReservation(ctx context.Context, r *model.Reservation) error

	// GetReservation returns a reservation or ErrReservationNotFound.
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)

	// SettleReservation deducts ActualCost from the account, flooring the
	// balance at zero, records any shortfall as a BillingDeficit, resolves a
	// queued ambiguous outcome and marks the reservation settled.
	// A reservation that is already settled returns its recorded settlement
	// with applied=false and no balance change.
	SettleReservation(ctx context.Context, p SettleParams) (settlement *model.Settlement, applied bool, err error)

	// AbandonReservation closes a reservation with no balance effect.
	// Returns false when it was already closed.
	AbandonReservation(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkAmbiguous flags a reservation and enqueues it for reconciliation.
	// Returns false when it was already flagged or closed.
	MarkAmbiguous(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// ExpireReservations moves pending reservations past their expiry to expired.
	ExpireReservations(ctx context.Context, now time.Time) (int64, error)

	// ApplyGrant records the grant and credits the account, creating it if
	// needed, in one transaction. A duplicate EventID returns applied=false
	// with the current balance.
	ApplyGrant(ctx context.Context, grant *model.CreditGrant) (balance int64, applied bool, err error)

	// ListDeficits returns the newest billing deficits first.
	ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error)

	// ListAmbiguous returns queued ambiguous outcomes, oldest first.
	ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}
