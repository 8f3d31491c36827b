package app

import (
	"github.com/shopspring/decimal"

	"github.com/quizforge/server/internal/model"
)

func grant(accountID, amount, eventID string) model.GrantRequest {
	return model.GrantRequest{
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		EventID:   eventID,
		Source:    model.GrantSourceAdmin,
	}
}
