package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxChargeAttempts bounds the compare-and-swap loop used when a
// settlement has to floor the balance at zero.
const maxChargeAttempts = 8

// ledgerStore implements outbound.LedgerStorePort on a relational database.
type ledgerStore struct {
	db *gorm.DB
}

// NewLedgerStore creates a new gorm-backed ledger store.
func NewLedgerStore(db *gorm.DB) outbound.LedgerStorePort {
	return &ledgerStore{db: db}
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.LedgerModels()...); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func (s *ledgerStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	balance, err := readBalance(s.db.WithContext(ctx), accountID)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *ledgerStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *ledgerStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, outbound.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &r, nil
}

func (s *ledgerStore) SettleReservation(ctx context.Context, p outbound.SettleParams) (*model.Settlement, bool, error) {
	var (
		settlement *model.Settlement
		applied    bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the reservation first. The row lock serializes duplicate
		// settlements of the same reservation.
		claim := tx.Model(&model.Reservation{}).
			Where("id = ? AND account_id = ? AND status IN ?", p.ReservationID, p.AccountID, settleableStatuses()).
			Updates(map[string]any{
				"status":     model.ReservationStatusSettled,
				"updated_at": p.At,
			})
		if claim.Error != nil {
			return fmt.Errorf("claim reservation: %w", claim.Error)
		}

		if claim.RowsAffected == 0 {
			var r model.Reservation
			if err := tx.Where("id = ?", p.ReservationID).Take(&r).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return outbound.ErrReservationNotFound
				}
				return fmt.Errorf("get reservation: %w", err)
			}
			switch {
			case r.AccountID != p.AccountID:
				return outbound.ErrReservationMismatch
			case r.Status == model.ReservationStatusSettled:
				settlement = r.Settlement()
				return nil
			default:
				return outbound.ErrReservationClosed
			}
		}

		charged, balance, err := chargeAccount(tx, p.AccountID, p.ActualCost, p.At)
		if err != nil {
			return err
		}
		deficit := p.ActualCost - charged

		err = tx.Model(&model.Reservation{}).
			Where("id = ?", p.ReservationID).
			Updates(map[string]any{
				"actual_cost":   p.ActualCost,
				"charged":       charged,
				"deficit":       deficit,
				"balance_after": balance,
				"settled_at":    p.At,
			}).Error
		if err != nil {
			return fmt.Errorf("record settlement: %w", err)
		}

		if deficit > 0 {
			record := &model.BillingDeficit{
				ID:            uuid.NewString(),
				ReservationID: p.ReservationID,
				AccountID:     p.AccountID,
				ActualCost:    p.ActualCost,
				Charged:       charged,
				Shortfall:     deficit,
				CreatedAt:     p.At,
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("record billing deficit: %w", err)
			}
		}

		if err := resolveAmbiguous(tx, p.ReservationID, p.ActualCost, p.At); err != nil {
			return err
		}

		applied = true
		settlement = &model.Settlement{
			ReservationID: p.ReservationID,
			AccountID:     p.AccountID,
			ActualCost:    p.ActualCost,
			Charged:       charged,
			Deficit:       deficit,
			Balance:       balance,
			SettledAt:     p.At,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return settlement, applied, nil
}

// chargeAccount deducts cost from the account. When the balance cannot
// cover it, the balance is swapped to zero and only the observed balance
// is charged.
func chargeAccount(tx *gorm.DB, accountID string, cost int64, at time.Time) (charged, balance int64, err error) {
	for attempt := 0; attempt < maxChargeAttempts; attempt++ {
		res := tx.Model(&model.Account{}).
			Where("id = ? AND balance >= ?", accountID, cost).
			UpdateColumns(map[string]any{
				"balance":    gorm.Expr("balance - ?", cost),
				"updated_at": at,
			})
		if res.Error != nil {
			return 0, 0, fmt.Errorf("deduct balance: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			balance, err := readBalance(tx, accountID)
			if err != nil {
				return 0, 0, err
			}
			return cost, balance, nil
		}

		observed, err := readBalance(tx, accountID)
		if err != nil {
			return 0, 0, err
		}
		if observed >= cost {
			// A concurrent top-up landed between the two statements.
			continue
		}

		res = tx.Model(&model.Account{}).
			Where("id = ? AND balance = ?", accountID, observed).
			UpdateColumns(map[string]any{
				"balance":    0,
				"updated_at": at,
			})
		if res.Error != nil {
			return 0, 0, fmt.Errorf("floor balance: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return observed, 0, nil
		}
	}
	return 0, 0, outbound.ErrConcurrentUpdate
}

func (s *ledgerStore) AbandonReservation(ctx context.Context, id string, at time.Time) (bool, error) {
	var closed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status IN ?", id, settleableStatuses()).
			Updates(map[string]any{
				"status":     model.ReservationStatusAbandoned,
				"updated_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("abandon reservation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return reservationExists(tx, id)
		}
		closed = true
		return resolveAmbiguous(tx, id, 0, at)
	})
	return closed, err
}

func (s *ledgerStore) MarkAmbiguous(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	var queued bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status IN ?", id, []string{
				string(model.ReservationStatusPending),
				string(model.ReservationStatusExpired),
			}).
			Updates(map[string]any{
				"status":     model.ReservationStatusAmbiguous,
				"updated_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("mark reservation ambiguous: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return reservationExists(tx, id)
		}

		var r model.Reservation
		if err := tx.Where("id = ?", id).Take(&r).Error; err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}

		entry := &model.AmbiguousOutcome{
			ID:            uuid.NewString(),
			ReservationID: id,
			AccountID:     r.AccountID,
			EstimatedCost: r.EstimatedCost,
			Reason:        reason,
			CreatedAt:     at,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_id"}},
			DoNothing: true,
		}).Create(entry).Error
		if err != nil {
			return fmt.Errorf("enqueue ambiguous outcome: %w", err)
		}
		queued = true
		return nil
	})
	return queued, err
}

func (s *ledgerStore) ExpireReservations(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("status = ? AND expires_at < ?", model.ReservationStatusPending, now).
		Updates(map[string]any{
			"status":     model.ReservationStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *ledgerStore) ApplyGrant(ctx context.Context, grant *model.CreditGrant) (int64, bool, error) {
	var (
		balance int64
		applied bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := *grant
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return fmt.Errorf("record credit grant: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			current, err := readBalance(tx, grant.AccountID)
			if err != nil && !errors.Is(err, outbound.ErrAccountNotFound) {
				return err
			}
			balance = current
			return nil
		}

		acct := &model.Account{
			ID:        grant.AccountID,
			Balance:   grant.Credits,
			CreatedAt: grant.CreatedAt,
			UpdatedAt: grant.CreatedAt,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":    gorm.Expr("ledger_accounts.balance + ?", grant.Credits),
				"updated_at": grant.CreatedAt,
			}),
		}).Create(acct).Error
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}

		current, err := readBalance(tx, grant.AccountID)
		if err != nil {
			return err
		}
		balance = current
		applied = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return balance, applied, nil
}

func (s *ledgerStore) ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error) {
	var out []*model.BillingDeficit
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list billing deficits: %w", err)
	}
	return out, nil
}

func (s *ledgerStore) ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error) {
	q := s.db.WithContext(ctx).Model(&model.AmbiguousOutcome{})
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}

	var out []*model.AmbiguousOutcome
	if err := q.Order("created_at ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list ambiguous outcomes: %w", err)
	}
	return out, nil
}

func (s *ledgerStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func readBalance(db *gorm.DB, accountID string) (int64, error) {
	var acct model.Account
	if err := db.Select("id", "balance").Where("id = ?", accountID).Take(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, outbound.ErrAccountNotFound
		}
		return 0, fmt.Errorf("get account: %w", err)
	}
	return acct.Balance, nil
}

// reservationExists returns ErrReservationNotFound for unknown ids.
func reservationExists(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&model.Reservation{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check reservation: %w", err)
	}
	if count == 0 {
		return outbound.ErrReservationNotFound
	}
	return nil
}

func resolveAmbiguous(tx *gorm.DB, reservationID string, cost int64, at time.Time) error {
	err := tx.Model(&model.AmbiguousOutcome{}).
		Where("reservation_id = ? AND resolved = ?", reservationID, false).
		Updates(map[string]any{
			"resolved":      true,
			"resolved_cost": cost,
			"resolved_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("resolve ambiguous outcome: %w", err)
	}
	return nil
}

func settleableStatuses() []string {
	out := make([]string, len(model.SettleableStatuses))
	for i, st := range model.SettleableStatuses {
		out[i] = string(st)
	}
	return out
}
