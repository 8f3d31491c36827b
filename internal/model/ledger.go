package model

import (
	"errors"
	"time"
)

// ErrBillingDeficit marks a settlement whose actual cost exceeded the balance.
var ErrBillingDeficit = errors.New("billing deficit")

// ReservationStatus represents the lifecycle state of a metered operation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusSettled   ReservationStatus = "settled"
	ReservationStatusAbandoned ReservationStatus = "abandoned"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusAmbiguous ReservationStatus = "ambiguous"
)

// SettleableStatuses are the states from which a settlement may be recorded.
// Expired and ambiguous reservations stay billable: the work may have been
// consumed even though nobody settled in time.
var SettleableStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusExpired,
	ReservationStatusAmbiguous,
}

// IsSettleable returns true if a settlement may still be recorded.
func (s ReservationStatus) IsSettleable() bool {
	for _, st := range SettleableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the reservation can no longer change.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusSettled || s == ReservationStatusAbandoned
}

// Account is a ledger account. Balance never goes below zero.
type Account struct {
	ID        string    `json:"id" gorm:"primaryKey;size:128"`
	Balance   int64     `json:"balance" gorm:"not null;default:0;check:chk_ledger_accounts_balance,balance >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Account) TableName() string {
	return "ledger_accounts"
}

// Reservation links an authorization to its eventual settlement.
type Reservation struct {
	ID            string            `json:"id" gorm:"primaryKey;size:64"`
	AccountID     string            `json:"account_id" gorm:"size:128;not null;index"`
	EstimatedCost int64             `json:"estimated_cost" gorm:"not null;default:0"`
	Status        ReservationStatus `json:"status" gorm:"size:16;not null;index:idx_reservations_status_expiry,priority:1"`
	ActualCost    int64             `json:"actual_cost" gorm:"not null;default:0"`
	Charged       int64             `json:"charged" gorm:"not null;default:0"`
	Deficit       int64             `json:"deficit" gorm:"not null;default:0"`
	BalanceAfter  int64             `json:"balance_after" gorm:"not null;default:0"`
	ExpiresAt     time.Time         `json:"expires_at" gorm:"not null;index:idx_reservations_status_expiry,priority:2"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Reservation) TableName() string {
	return "ledger_reservations"
}

// Settlement returns the recorded outcome of a settled reservation.
func (r *Reservation) Settlement() *Settlement {
	s := &Settlement{
		ReservationID: r.ID,
		AccountID:     r.AccountID,
		ActualCost:    r.ActualCost,
		Charged:       r.Charged,
		Deficit:       r.Deficit,
		Balance:       r.BalanceAfter,
	}
	if r.SettledAt != nil {
		s.SettledAt = *r.SettledAt
	}
	return s
}

// Settlement is the outcome of deducting actual cost from an account.
type Settlement struct {
	ReservationID string    `json:"reservation_id"`
	AccountID     string    `json:"account_id"`
	ActualCost    int64     `json:"actual_cost"`
	Charged       int64     `json:"charged"`
	Deficit       int64     `json:"deficit"`
	Balance       int64     `json:"balance"`
	SettledAt     time.Time `json:"settled_at"`
}

// HasDeficit reports whether the account could not cover the full cost.
func (s *Settlement) HasDeficit() bool {
	return s.Deficit > 0
}

// Err returns ErrBillingDeficit when a shortfall was recorded. The work was
// still delivered, so callers treat this as an operational signal only.
func (s *Settlement) Err() error {
	if s.HasDeficit() {
		return ErrBillingDeficit
	}
	return nil
}

// GrantSource identifies where a credit grant came from.
type GrantSource string

const (
	GrantSourcePayPal GrantSource = "paypal"
	GrantSourceStripe GrantSource = "stripe"
	GrantSourceAPI    GrantSource = "api"
	GrantSourceAdmin  GrantSource = "admin"
)

// CreditGrant records an applied top-up. EventID is the idempotency key.
type CreditGrant struct {
	EventID   string      `json:"event_id" gorm:"primaryKey;size:255"`
	AccountID string      `json:"account_id" gorm:"size:128;not null;index"`
	Amount    string      `json:"amount" gorm:"size:32;not null"`
	Credits   int64       `json:"credits" gorm:"not null"`
	Source    GrantSource `json:"source" gorm:"size:32;not null"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName returns the table name for GORM.
func (CreditGrant) TableName() string {
	return "ledger_credit_grants"
}

// BillingDeficit records a settlement shortfall for out-of-band collection.
// Deficits are append-only; collection happens outside the ledger.
type BillingDeficit struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	ReservationID string    `json:"reservation_id" gorm:"size:64;not null;uniqueIndex"`
	AccountID     string    `json:"account_id" gorm:"size:128;not null;index"`
	ActualCost    int64     `json:"actual_cost" gorm:"not null"`
	Charged       int64     `json:"charged" gorm:"not null"`
	Shortfall     int64     `json:"shortfall" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the table name for GORM.
func (BillingDeficit) TableName() string {
	return "ledger_billing_deficits"
}

// AmbiguousOutcome is a reconciliation queue entry for a gateway call whose
// cost is unknown.
type AmbiguousOutcome struct {
	ID            string     `json:"id" gorm:"primaryKey;size:64"`
	ReservationID string     `json:"reservation_id" gorm:"size:64;not null;uniqueIndex"`
	AccountID     string     `json:"account_id" gorm:"size:128;not null;index"`
	EstimatedCost int64      `json:"estimated_cost" gorm:"not null"`
	Reason        string     `json:"reason" gorm:"size:512"`
	Resolved      bool       `json:"resolved" gorm:"not null;default:false;index"`
	ResolvedCost  *int64     `json:"resolved_cost,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// TableName returns the table name for GORM.
func (AmbiguousOutcome) TableName() string {
	return "ledger_ambiguous_outcomes"
}

// LedgerModels lists every table owned by the ledger, in migration order.
func LedgerModels() []any {
	return []any{
		&Account{},
		&Reservation{},
		&CreditGrant{},
		&BillingDeficit{},
		&AmbiguousOutcome{},
	}
}
