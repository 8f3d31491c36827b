package gin

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/quizforge/server/internal/model"
)

type MockQuizDomain struct {
	mock.Mock
}

func (m *MockQuizDomain) Generate(ctx context.Context, accountID, text string) (*model.Quiz, error) {
	args := m.Called(ctx, accountID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Quiz), args.Error(1)
}

type MockMeteringDomain struct {
	mock.Mock
}

func (m *MockMeteringDomain) Authorize(ctx context.Context, accountID string, estimatedCost int64) (*model.Reservation, error) {
	args := m.Called(ctx, accountID, estimatedCost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *MockMeteringDomain) Settle(ctx context.Context, accountID, reservationID string, actualCost int64) (*model.Settlement, error) {
	args := m.Called(ctx, accountID, reservationID, actualCost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Settlement), args.Error(1)
}

func (m *MockMeteringDomain) Abandon(ctx context.Context, reservationID string) error {
	return m.Called(ctx, reservationID).Error(0)
}

func (m *MockMeteringDomain) FlagAmbiguous(ctx context.Context, reservationID, reason string) error {
	return m.Called(ctx, reservationID, reason).Error(0)
}

func (m *MockMeteringDomain) Reconcile(ctx context.Context, reservationID string, actualCost int64) (*model.Settlement, error) {
	args := m.Called(ctx, reservationID, actualCost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Settlement), args.Error(1)
}

func (m *MockMeteringDomain) ExpireStale(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockMeteringDomain) Balance(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMeteringDomain) ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error) {
	args := m.Called(ctx, limit, includeResolved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AmbiguousOutcome), args.Error(1)
}

func (m *MockMeteringDomain) ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.BillingDeficit), args.Error(1)
}

type MockCreditDomain struct {
	mock.Mock
}

func (m *MockCreditDomain) Issue(ctx context.Context, grant model.GrantRequest) (*model.IssueResult, error) {
	args := m.Called(ctx, grant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IssueResult), args.Error(1)
}

func (m *MockCreditDomain) Tiers() []model.CreditTier {
	return m.Called().Get(0).([]model.CreditTier)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
