package inbound

import (
	"context"

	"github.com/quizforge/server/internal/model"
)

// MeteringDomain authorizes and settles metered operations.
type MeteringDomain interface {
	Authorize(ctx context.Context, accountID string, estimatedCost int64) (*model.Reservation, error)
	Settle(ctx context.Context, accountID, reservationID string, actualCost int64) (*model.Settlement, error)
	Abandon(ctx context.Context, reservationID string) error
	FlagAmbiguous(ctx context.Context, reservationID, reason string) error
	Reconcile(ctx context.Context, reservationID string, actualCost int64) (*model.Settlement, error)
	ExpireStale(ctx context.Context) (int, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error)
	ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error)
}
