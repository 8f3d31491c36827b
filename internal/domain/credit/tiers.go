package credit

import (
	"github.com/quizforge/server/internal/model"
	"github.com/shopspring/decimal"
)

// tiers is the fixed table of accepted payment amounts.
var tiers = []model.CreditTier{
	{Amount: decimal.RequireFromString("1.00"), Credits: 1000},
	{Amount: decimal.RequireFromString("5.00"), Credits: 5000},
	{Amount: decimal.RequireFromString("10.00"), Credits: 10000},
}

// Tiers returns a copy of the tier table, cheapest first.
func Tiers() []model.CreditTier {
	out := make([]model.CreditTier, len(tiers))
	copy(out, tiers)
	return out
}

// CreditsFor maps a payment amount to credits. Amounts compare by value,
// so "5", "5.0" and "5.00" are the same tier.
func CreditsFor(amount decimal.Decimal) (int64, error) {
	for _, t := range tiers {
		if t.Amount.Equal(amount) {
			return t.Credits, nil
		}
	}
	return 0, ErrInvalidAmount
}
