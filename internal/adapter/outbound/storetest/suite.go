// Package storetest holds the behavioural suite every LedgerStorePort
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) outbound.LedgerStorePort

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GrantCreatesAccount", func(t *testing.T) { testGrantCreatesAccount(t, newStore(t)) })
	t.Run("GrantIsIdempotent", func(t *testing.T) { testGrantIsIdempotent(t, newStore(t)) })
	t.Run("UnknownAccount", func(t *testing.T) { testUnknownAccount(t, newStore(t)) })
	t.Run("SettleWithinBalance", func(t *testing.T) { testSettleWithinBalance(t, newStore(t)) })
	t.Run("SettleRecordsDeficit", func(t *testing.T) { testSettleRecordsDeficit(t, newStore(t)) })
	t.Run("DeficitsNewestFirst", func(t *testing.T) { testDeficitsNewestFirst(t, newStore(t)) })
	t.Run("SettleIsIdempotent", func(t *testing.T) { testSettleIsIdempotent(t, newStore(t)) })
	t.Run("SettleErrors", func(t *testing.T) { testSettleErrors(t, newStore(t)) })
	t.Run("AbandonReservation", func(t *testing.T) { testAbandonReservation(t, newStore(t)) })
	t.Run("ExpireReservations", func(t *testing.T) { testExpireReservations(t, newStore(t)) })
	t.Run("AmbiguousQueue", func(t *testing.T) { testAmbiguousQueue(t, newStore(t)) })
	t.Run("ConcurrentSettles", func(t *testing.T) { testConcurrentSettles(t, newStore(t)) })
	t.Run("ConcurrentGrants", func(t *testing.T) { testConcurrentGrants(t, newStore(t)) })
}

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func grant(t *testing.T, s outbound.LedgerStorePort, accountID, eventID string, credits int64) int64 {
	t.Helper()
	balance, applied, err := s.ApplyGrant(context.Background(), &model.CreditGrant{
		EventID:   eventID,
		AccountID: accountID,
		Amount:    fmt.Sprintf("%d.00", credits/1000),
		Credits:   credits,
		Source:    model.GrantSourceAPI,
		CreatedAt: epoch,
	})
	require.NoError(t, err)
	require.True(t, applied)
	return balance
}

func reserve(t *testing.T, s outbound.LedgerStorePort, accountID string, estimate int64, expiresAt time.Time) string {
	t.Helper()
	r := &model.Reservation{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		EstimatedCost: estimate,
		Status:        model.ReservationStatusPending,
		ExpiresAt:     expiresAt,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
	require.NoError(t, s.CreateReservation(context.Background(), r))
	return r.ID
}

func settle(s outbound.LedgerStorePort, accountID, reservationID string, cost int64) (*model.Settlement, bool, error) {
	return s.SettleReservation(context.Background(), outbound.SettleParams{
		ReservationID: reservationID,
		AccountID:     accountID,
		ActualCost:    cost,
		At:            epoch.Add(time.Minute),
	})
}

func testGrantCreatesAccount(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()

	balance := grant(t, s, "u1", "evt-1", 5000)
	assert.Equal(t, int64(5000), balance)

	got, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got)

	balance = grant(t, s, "u1", "evt-2", 1000)
	assert.Equal(t, int64(6000), balance)
}

func testGrantIsIdempotent(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "u1", "evt-1", 5000)

	balance, applied, err := s.ApplyGrant(ctx, &model.CreditGrant{
		EventID:   "evt-1",
		AccountID: "u1",
		Amount:    "5.00",
		Credits:   5000,
		Source:    model.GrantSourceAPI,
		CreatedAt: epoch,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(5000), balance)

	got, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got)
}

func testUnknownAccount(t *testing.T, s outbound.LedgerStorePort) {
	_, err := s.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, outbound.ErrAccountNotFound)

	_, err = s.GetReservation(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, outbound.ErrReservationNotFound)
}

func testSettleWithinBalance(t *testing.T, s outbound.LedgerStorePort) {
	grant(t, s, "acct", "evt-500", 500)
	id := reserve(t, s, "acct", 400, epoch.Add(time.Hour))

	st, applied, err := settle(s, "acct", id, 450)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(450), st.ActualCost)
	assert.Equal(t, int64(450), st.Charged)
	assert.Equal(t, int64(0), st.Deficit)
	assert.Equal(t, int64(50), st.Balance)

	r, err := s.GetReservation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusSettled, r.Status)

	deficits, err := s.ListDeficits(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, deficits)
}

func testSettleRecordsDeficit(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "acct", "evt-500", 500)
	id := reserve(t, s, "acct", 400, epoch.Add(time.Hour))

	st, applied, err := settle(s, "acct", id, 600)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(500), st.Charged)
	assert.Equal(t, int64(100), st.Deficit)
	assert.Equal(t, int64(0), st.Balance)

	balance, err := s.GetBalance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	deficits, err := s.ListDeficits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deficits, 1)
	assert.Equal(t, id, deficits[0].ReservationID)
	assert.Equal(t, int64(100), deficits[0].Shortfall)
	assert.Equal(t, int64(600), deficits[0].ActualCost)
}

func testDeficitsNewestFirst(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "acct", "evt-100", 100)
	first := reserve(t, s, "acct", 50, epoch.Add(time.Hour))
	second := reserve(t, s, "acct", 50, epoch.Add(time.Hour))

	for i, p := range []outbound.SettleParams{
		{ReservationID: first, AccountID: "acct", ActualCost: 300, At: epoch.Add(time.Minute)},
		{ReservationID: second, AccountID: "acct", ActualCost: 50, At: epoch.Add(2 * time.Minute)},
	} {
		_, applied, err := s.SettleReservation(ctx, p)
		require.NoError(t, err, "settle %d", i)
		require.True(t, applied)
	}

	deficits, err := s.ListDeficits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deficits, 2)
	assert.Equal(t, second, deficits[0].ReservationID)
	assert.Equal(t, int64(50), deficits[0].Shortfall)
	assert.Equal(t, first, deficits[1].ReservationID)
	assert.Equal(t, int64(200), deficits[1].Shortfall)

	latest, err := s.ListDeficits(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, second, latest[0].ReservationID)
}

func testSettleIsIdempotent(t *testing.T, s outbound.LedgerStorePort) {
	grant(t, s, "acct", "evt-1", 1000)
	id := reserve(t, s, "acct", 100, epoch.Add(time.Hour))

	first, applied, err := settle(s, "acct", id, 300)
	require.NoError(t, err)
	require.True(t, applied)

	second, applied, err := settle(s, "acct", id, 300)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first.ActualCost, second.ActualCost)
	assert.Equal(t, first.Charged, second.Charged)
	assert.Equal(t, first.Balance, second.Balance)

	// A retry with a different cost still reports the recorded outcome.
	third, applied, err := settle(s, "acct", id, 999)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(300), third.ActualCost)

	balance, err := s.GetBalance(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)
}

func testSettleErrors(t *testing.T, s outbound.LedgerStorePort) {
	grant(t, s, "acct", "evt-1", 1000)
	grant(t, s, "other", "evt-2", 1000)
	id := reserve(t, s, "acct", 100, epoch.Add(time.Hour))

	_, _, err := settle(s, "acct", uuid.NewString(), 10)
	assert.ErrorIs(t, err, outbound.ErrReservationNotFound)

	_, _, err = settle(s, "other", id, 10)
	assert.ErrorIs(t, err, outbound.ErrReservationMismatch)

	closed, err := s.AbandonReservation(context.Background(), id, epoch)
	require.NoError(t, err)
	require.True(t, closed)

	_, _, err = settle(s, "acct", id, 10)
	assert.ErrorIs(t, err, outbound.ErrReservationClosed)

	balance, err := s.GetBalance(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func testAbandonReservation(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "acct", "evt-1", 1000)
	id := reserve(t, s, "acct", 100, epoch.Add(time.Hour))

	closed, err := s.AbandonReservation(ctx, id, epoch)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = s.AbandonReservation(ctx, id, epoch)
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = s.AbandonReservation(ctx, uuid.NewString(), epoch)
	assert.ErrorIs(t, err, outbound.ErrReservationNotFound)

	r, err := s.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusAbandoned, r.Status)
}

func testExpireReservations(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "acct", "evt-1", 1000)
	stale := reserve(t, s, "acct", 100, epoch.Add(-time.Minute))
	fresh := reserve(t, s, "acct", 100, epoch.Add(time.Hour))

	n, err := s.ExpireReservations(ctx, epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r, err := s.GetReservation(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusExpired, r.Status)

	r, err = s.GetReservation(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusPending, r.Status)

	n, err = s.ExpireReservations(ctx, epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Expiry has no balance effect, and late settlement is still billed.
	balance, err := s.GetBalance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	st, applied, err := settle(s, "acct", stale, 250)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(750), st.Balance)
}

func testAmbiguousQueue(t *testing.T, s outbound.LedgerStorePort) {
	ctx := context.Background()
	grant(t, s, "acct", "evt-1", 1000)
	settled := reserve(t, s, "acct", 100, epoch.Add(time.Hour))
	dropped := reserve(t, s, "acct", 100, epoch.Add(time.Hour))

	queued, err := s.MarkAmbiguous(ctx, settled, "deadline exceeded", epoch)
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = s.MarkAmbiguous(ctx, settled, "deadline exceeded", epoch)
	require.NoError(t, err)
	assert.False(t, queued)

	queued, err = s.MarkAmbiguous(ctx, dropped, "connection reset", epoch.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, queued)

	open, err := s.ListAmbiguous(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, settled, open[0].ReservationID)
	assert.Equal(t, "deadline exceeded", open[0].Reason)
	assert.Equal(t, int64(100), open[0].EstimatedCost)

	_, applied, err := settle(s, "acct", settled, 120)
	require.NoError(t, err)
	assert.True(t, applied)

	closed, err := s.AbandonReservation(ctx, dropped, epoch)
	require.NoError(t, err)
	assert.True(t, closed)

	open, err = s.ListAmbiguous(ctx, 10, false)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.ListAmbiguous(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, a := range all {
		assert.True(t, a.Resolved)
		require.NotNil(t, a.ResolvedCost)
		if a.ReservationID == settled {
			assert.Equal(t, int64(120), *a.ResolvedCost)
		} else {
			assert.Equal(t, int64(0), *a.ResolvedCost)
		}
	}
}

func testConcurrentSettles(t *testing.T, s outbound.LedgerStorePort) {
	const n = 50
	grant(t, s, "acct", "evt-n", n)

	ids := make([]string, n)
	for i := range ids {
		ids[i] = reserve(t, s, "acct", 1, epoch.Add(time.Hour))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			st, _, err := settle(s, "acct", id, 1)
			if err != nil {
				errs <- err
				return
			}
			if st.Deficit != 0 {
				errs <- fmt.Errorf("unexpected deficit on %s", id)
			}
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	balance, err := s.GetBalance(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func testConcurrentGrants(t *testing.T, s outbound.LedgerStorePort) {
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every event is delivered twice.
			for j := 0; j < 2; j++ {
				_, _, err := s.ApplyGrant(context.Background(), &model.CreditGrant{
					EventID:   fmt.Sprintf("evt-%d", i),
					AccountID: "acct",
					Amount:    "1.00",
					Credits:   1000,
					Source:    model.GrantSourcePayPal,
					CreatedAt: epoch,
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	balance, err := s.GetBalance(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(n*1000), balance)
}
