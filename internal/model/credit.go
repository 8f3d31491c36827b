package model

import "github.com/shopspring/decimal"

// GrantRequest is a normalized credit top-up, independent of the payment
// vendor that produced it.
type GrantRequest struct {
	AccountID string
	Amount    decimal.Decimal
	EventID   string
	Source    GrantSource
}

// IssueStatus tells whether a grant changed the balance.
type IssueStatus string

const (
	IssueStatusApplied        IssueStatus = "applied"
	IssueStatusAlreadyApplied IssueStatus = "already_applied"
)

// IssueResult is the outcome of a credit grant.
type IssueResult struct {
	Status    IssueStatus `json:"status"`
	AccountID string      `json:"account_id"`
	EventID   string      `json:"event_id"`
	Credits   int64       `json:"credits"`
	Balance   int64       `json:"balance"`
}

// CreditTier maps a payment amount to the credits it buys.
type CreditTier struct {
	Amount  decimal.Decimal `json:"amount"`
	Credits int64           `json:"credits"`
}
