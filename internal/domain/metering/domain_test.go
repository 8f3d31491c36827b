package metering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/adapter/outbound/memory"
	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type MockLedgerStore struct {
	outbound.LedgerStorePort
	mock.Mock
}

func (m *MockLedgerStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockLedgerStore) SettleReservation(ctx context.Context, p outbound.SettleParams) (*model.Settlement, bool, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Settlement), args.Bool(1), args.Error(2)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type recordingMetrics struct {
	outbound.NopMetrics
	mu             sync.Mutex
	authorizations []string
	settlements    []string
}

func (m *recordingMetrics) RecordAuthorization(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizations = append(m.authorizations, result)
}

func (m *recordingMetrics) RecordSettlement(result string, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements = append(m.settlements, result)
}

// --- Helpers ---

type fixture struct {
	store   outbound.LedgerStorePort
	pub     *recordingPublisher
	metrics *recordingMetrics
	domain  *Domain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewLedgerStore(),
		pub:     &recordingPublisher{},
		metrics: &recordingMetrics{},
	}
	f.domain = NewMeteringDomain(f.store, f.pub, f.metrics, Config{ReservationTTL: time.Minute}, zap.NewNop())
	return f
}

func (f *fixture) fund(t *testing.T, accountID string, credits int64) {
	t.Helper()
	_, _, err := f.store.ApplyGrant(context.Background(), &model.CreditGrant{
		EventID:   uuid.NewString(),
		AccountID: accountID,
		Amount:    "0.00",
		Credits:   credits,
		Source:    model.GrantSourceAdmin,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// --- Tests ---

func TestMeteringDomain_Authorize(t *testing.T) {
	ctx := context.Background()

	t.Run("sufficient balance opens a reservation without deducting", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 500)

		r, err := f.domain.Authorize(ctx, "acct", 400)
		require.NoError(t, err)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, model.ReservationStatusPending, r.Status)
		assert.Equal(t, int64(400), r.EstimatedCost)
		assert.WithinDuration(t, time.Now().Add(time.Minute), r.ExpiresAt, 5*time.Second)

		balance, err := f.domain.Balance(ctx, "acct")
		require.NoError(t, err)
		assert.Equal(t, int64(500), balance)

		stored, err := f.store.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "acct", stored.AccountID)
		assert.Equal(t, []string{"authorized"}, f.metrics.authorizations)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 100)

		_, err := f.domain.Authorize(ctx, "acct", 101)
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		assert.Equal(t, []string{"insufficient"}, f.metrics.authorizations)
	})

	t.Run("exact balance is sufficient", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 100)

		_, err := f.domain.Authorize(ctx, "acct", 100)
		assert.NoError(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.domain.Authorize(ctx, "ghost", 1)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, err = f.domain.Authorize(ctx, "", 1)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("zero estimate only checks existence", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 0)

		_, err := f.domain.Authorize(ctx, "acct", 0)
		assert.NoError(t, err)

		_, err = f.domain.Authorize(ctx, "ghost", 0)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("negative estimate", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.domain.Authorize(ctx, "acct", -1)
		assert.ErrorIs(t, err, ErrInvalidCost)
	})

	t.Run("store error is wrapped", func(t *testing.T) {
		store := new(MockLedgerStore)
		d := NewMeteringDomain(store, nil, nil, Config{}, zap.NewNop())
		storeErr := errors.New("connection refused")
		store.On("GetBalance", ctx, "acct").Return(int64(0), storeErr)

		_, err := d.Authorize(ctx, "acct", 10)
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("reservation create failure", func(t *testing.T) {
		store := new(MockLedgerStore)
		d := NewMeteringDomain(store, nil, nil, Config{}, zap.NewNop())
		store.On("GetBalance", ctx, "acct").Return(int64(100), nil)
		store.On("CreateReservation", ctx, mock.Anything).Return(errors.New("disk full"))

		_, err := d.Authorize(ctx, "acct", 10)
		assert.Error(t, err)
		store.AssertExpectations(t)
	})
}

func TestMeteringDomain_Settle(t *testing.T) {
	ctx := context.Background()

	t.Run("actual cost within balance", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 500)
		r, err := f.domain.Authorize(ctx, "acct", 400)
		require.NoError(t, err)

		s, err := f.domain.Settle(ctx, "acct", r.ID, 450)
		require.NoError(t, err)
		assert.Equal(t, int64(50), s.Balance)
		assert.Equal(t, int64(0), s.Deficit)
		assert.NoError(t, s.Err())
		assert.Empty(t, f.pub.types())
	})

	t.Run("actual cost beyond balance floors at zero and records deficit", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 500)
		r, err := f.domain.Authorize(ctx, "acct", 400)
		require.NoError(t, err)

		s, err := f.domain.Settle(ctx, "acct", r.ID, 600)
		require.NoError(t, err, "a deficit never blocks delivery")
		assert.Equal(t, int64(0), s.Balance)
		assert.Equal(t, int64(500), s.Charged)
		assert.Equal(t, int64(100), s.Deficit)
		assert.ErrorIs(t, s.Err(), ErrBillingDeficit)

		deficits, err := f.domain.ListDeficits(ctx, 0)
		require.NoError(t, err)
		require.Len(t, deficits, 1)
		assert.Equal(t, int64(100), deficits[0].Shortfall)

		assert.Equal(t, []string{events.DeficitRecordedType}, f.pub.types())
		assert.Equal(t, []string{"deficit"}, f.metrics.settlements)
	})

	t.Run("second settle returns the recorded outcome", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 1000)
		r, err := f.domain.Authorize(ctx, "acct", 100)
		require.NoError(t, err)

		first, err := f.domain.Settle(ctx, "acct", r.ID, 200)
		require.NoError(t, err)
		second, err := f.domain.Settle(ctx, "acct", r.ID, 200)
		require.NoError(t, err)

		assert.Equal(t, first.Balance, second.Balance)
		assert.Equal(t, first.Charged, second.Charged)

		balance, err := f.domain.Balance(ctx, "acct")
		require.NoError(t, err)
		assert.Equal(t, int64(800), balance)
		assert.Equal(t, []string{"settled", "duplicate"}, f.metrics.settlements)
	})

	t.Run("balance changed since authorize", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 500)
		r1, err := f.domain.Authorize(ctx, "acct", 400)
		require.NoError(t, err)
		r2, err := f.domain.Authorize(ctx, "acct", 400)
		require.NoError(t, err)

		_, err = f.domain.Settle(ctx, "acct", r1.ID, 400)
		require.NoError(t, err)

		s, err := f.domain.Settle(ctx, "acct", r2.ID, 400)
		require.NoError(t, err)
		assert.Equal(t, int64(100), s.Charged)
		assert.Equal(t, int64(300), s.Deficit)
	})

	t.Run("errors", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "acct", 500)
		f.fund(t, "other", 500)
		r, err := f.domain.Authorize(ctx, "acct", 10)
		require.NoError(t, err)

		_, err = f.domain.Settle(ctx, "acct", r.ID, -1)
		assert.ErrorIs(t, err, ErrInvalidCost)

		_, err = f.domain.Settle(ctx, "acct", "missing", 1)
		assert.ErrorIs(t, err, ErrReservationNotFound)

		_, err = f.domain.Settle(ctx, "other", r.ID, 1)
		assert.ErrorIs(t, err, ErrReservationMismatch)

		require.NoError(t, f.domain.Abandon(ctx, r.ID))
		_, err = f.domain.Settle(ctx, "acct", r.ID, 1)
		assert.ErrorIs(t, err, ErrReservationClosed)
	})

	t.Run("passes settlement time to the store", func(t *testing.T) {
		store := new(MockLedgerStore)
		d := NewMeteringDomain(store, nil, nil, Config{}, zap.NewNop())
		fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		d.now = func() time.Time { return fixed }

		store.On("SettleReservation", ctx, outbound.SettleParams{
			ReservationID: "r1",
			AccountID:     "acct",
			ActualCost:    42,
			At:            fixed,
		}).Return(&model.Settlement{ReservationID: "r1", Balance: 58}, true, nil)

		s, err := d.Settle(ctx, "acct", "r1", 42)
		require.NoError(t, err)
		assert.Equal(t, int64(58), s.Balance)
		store.AssertExpectations(t)
	})
}

func TestMeteringDomain_ConcurrentSettles(t *testing.T) {
	const n = 100
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct", n)

	ids := make([]string, n)
	for i := range ids {
		r, err := f.domain.Authorize(ctx, "acct", 1)
		require.NoError(t, err)
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.domain.Settle(ctx, "acct", id, 1)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	balance, err := f.domain.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestMeteringDomain_Abandon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct", 100)
	r, err := f.domain.Authorize(ctx, "acct", 50)
	require.NoError(t, err)

	require.NoError(t, f.domain.Abandon(ctx, r.ID))
	require.NoError(t, f.domain.Abandon(ctx, r.ID), "abandon is idempotent")

	balance, err := f.domain.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	assert.ErrorIs(t, f.domain.Abandon(ctx, "missing"), ErrReservationNotFound)
}

func TestMeteringDomain_FlagAmbiguous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct", 100)
	r, err := f.domain.Authorize(ctx, "acct", 50)
	require.NoError(t, err)

	require.NoError(t, f.domain.FlagAmbiguous(ctx, r.ID, "context deadline exceeded"))
	require.NoError(t, f.domain.FlagAmbiguous(ctx, r.ID, "context deadline exceeded"))

	queue, err := f.domain.ListAmbiguous(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, r.ID, queue[0].ReservationID)
	assert.Equal(t, int64(50), queue[0].EstimatedCost)

	// Never assumed free: the balance is untouched until reconciled.
	balance, err := f.domain.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	assert.Equal(t, []string{events.AmbiguousQueuedType}, f.pub.types())
	assert.ErrorIs(t, f.domain.FlagAmbiguous(ctx, "missing", "x"), ErrReservationNotFound)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1))
}
