package inbound

import (
	"context"

	"github.com/quizforge/server/internal/model"
)

// CreditDomain applies idempotent credit grants.
type CreditDomain interface {
	Issue(ctx context.Context, grant model.GrantRequest) (*model.IssueResult, error)
	Tiers() []model.CreditTier
}
