package metering

import (
	"context"
	"fmt"

	"github.com/quizforge/server/internal/model"
	"go.uber.org/zap"
)

// Reconcile resolves a reservation whose cost was unknown at call time.
// A positive actualCost settles it like Settle would; zero abandons it.
// Pending reservations still belong to a live request and are refused.
func (d *Domain) Reconcile(ctx context.Context, reservationID string, actualCost int64) (*model.Settlement, error) {
	if actualCost < 0 {
		return nil, ErrInvalidCost
	}

	reservation, err := d.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", reservationID, err)
	}

	switch reservation.Status {
	case model.ReservationStatusPending:
		return nil, ErrNotAmbiguous
	case model.ReservationStatusSettled:
		return reservation.Settlement(), nil
	case model.ReservationStatusAbandoned:
		if actualCost > 0 {
			return nil, ErrReservationClosed
		}
		return d.zeroSettlement(ctx, reservation)
	}

	if actualCost == 0 {
		if err := d.Abandon(ctx, reservationID); err != nil {
			return nil, err
		}
		d.logger.Info("reconciled with no cost", zap.String("reservation_id", reservationID))
		return d.zeroSettlement(ctx, reservation)
	}

	settlement, err := d.Settle(ctx, reservation.AccountID, reservationID, actualCost)
	if err != nil {
		return nil, err
	}
	d.logger.Info("reconciled",
		zap.String("reservation_id", reservationID),
		zap.String("account_id", reservation.AccountID),
		zap.Int64("actual_cost", actualCost),
		zap.Int64("deficit", settlement.Deficit),
	)
	return settlement, nil
}

func (d *Domain) zeroSettlement(ctx context.Context, reservation *model.Reservation) (*model.Settlement, error) {
	balance, err := d.Balance(ctx, reservation.AccountID)
	if err != nil {
		return nil, err
	}
	return &model.Settlement{
		ReservationID: reservation.ID,
		AccountID:     reservation.AccountID,
		Balance:       balance,
	}, nil
}
