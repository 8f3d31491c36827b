package inbound

import (
	"context"

	"github.com/quizforge/server/internal/model"
)

// QuizDomain generates quizzes billed against the caller's balance.
type QuizDomain interface {
	Generate(ctx context.Context, accountID, text string) (*model.Quiz, error)
}
