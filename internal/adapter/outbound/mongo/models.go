package mongo

import (
	"time"

	"github.com/quizforge/server/internal/model"
)

// Collection names.
const (
	colAccounts     = "ledger_accounts"
	colReservations = "ledger_reservations"
	colGrants       = "ledger_credit_grants"
	colDeficits     = "ledger_billing_deficits"
	colAmbiguous    = "ledger_ambiguous_outcomes"
)

type accountDoc struct {
	ID        string    `bson:"_id"`
	Balance   int64     `bson:"balance"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type reservationDoc struct {
	ID            string     `bson:"_id"`
	AccountID     string     `bson:"account_id"`
	EstimatedCost int64      `bson:"estimated_cost"`
	Status        string     `bson:"status"`
	ActualCost    int64      `bson:"actual_cost"`
	Charged       int64      `bson:"charged"`
	Deficit       int64      `bson:"deficit"`
	BalanceAfter  int64      `bson:"balance_after"`
	ExpiresAt     time.Time  `bson:"expires_at"`
	SettledAt     *time.Time `bson:"settled_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toReservationDoc(r *model.Reservation) *reservationDoc {
	return &reservationDoc{
		ID:            r.ID,
		AccountID:     r.AccountID,
		EstimatedCost: r.EstimatedCost,
		Status:        string(r.Status),
		ActualCost:    r.ActualCost,
		Charged:       r.Charged,
		Deficit:       r.Deficit,
		BalanceAfter:  r.BalanceAfter,
		ExpiresAt:     r.ExpiresAt,
		SettledAt:     r.SettledAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromReservationDoc(d *reservationDoc) *model.Reservation {
	return &model.Reservation{
		ID:            d.ID,
		AccountID:     d.AccountID,
		EstimatedCost: d.EstimatedCost,
		Status:        model.ReservationStatus(d.Status),
		ActualCost:    d.ActualCost,
		Charged:       d.Charged,
		Deficit:       d.Deficit,
		BalanceAfter:  d.BalanceAfter,
		ExpiresAt:     d.ExpiresAt,
		SettledAt:     d.SettledAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type grantDoc struct {
	EventID   string    `bson:"_id"`
	AccountID string    `bson:"account_id"`
	Amount    string    `bson:"amount"`
	Credits   int64     `bson:"credits"`
	Source    string    `bson:"source"`
	CreatedAt time.Time `bson:"created_at"`
}

func toGrantDoc(g *model.CreditGrant) *grantDoc {
	return &grantDoc{
		EventID:   g.EventID,
		AccountID: g.AccountID,
		Amount:    g.Amount,
		Credits:   g.Credits,
		Source:    string(g.Source),
		CreatedAt: g.CreatedAt,
	}
}

type deficitDoc struct {
	ID            string    `bson:"_id"`
	ReservationID string    `bson:"reservation_id"`
	AccountID     string    `bson:"account_id"`
	ActualCost    int64     `bson:"actual_cost"`
	Charged       int64     `bson:"charged"`
	Shortfall     int64     `bson:"shortfall"`
	CreatedAt     time.Time `bson:"created_at"`
}

func fromDeficitDoc(d *deficitDoc) *model.BillingDeficit {
	return &model.BillingDeficit{
		ID:            d.ID,
		ReservationID: d.ReservationID,
		AccountID:     d.AccountID,
		ActualCost:    d.ActualCost,
		Charged:       d.Charged,
		Shortfall:     d.Shortfall,
		CreatedAt:     d.CreatedAt,
	}
}

type ambiguousDoc struct {
	ID            string     `bson:"_id"`
	ReservationID string     `bson:"reservation_id"`
	AccountID     string     `bson:"account_id"`
	EstimatedCost int64      `bson:"estimated_cost"`
	Reason        string     `bson:"reason"`
	Resolved      bool       `bson:"resolved"`
	ResolvedCost  *int64     `bson:"resolved_cost,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	ResolvedAt    *time.Time `bson:"resolved_at,omitempty"`
}

func fromAmbiguousDoc(d *ambiguousDoc) *model.AmbiguousOutcome {
	return &model.AmbiguousOutcome{
		ID:            d.ID,
		ReservationID: d.ReservationID,
		AccountID:     d.AccountID,
		EstimatedCost: d.EstimatedCost,
		Reason:        d.Reason,
		Resolved:      d.Resolved,
		ResolvedCost:  d.ResolvedCost,
		CreatedAt:     d.CreatedAt,
		ResolvedAt:    d.ResolvedAt,
	}
}
