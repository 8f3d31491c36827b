package metering

import (
	"context"
	"testing"
	"time"

	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMeteringDomain_ExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct", 100)

	r, err := f.domain.Authorize(ctx, "acct", 50)
	require.NoError(t, err)

	n, err := f.domain.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.domain.now = func() time.Time { return r.ExpiresAt.Add(time.Second) }
	n, err = f.domain.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusExpired, stored.Status)
	assert.Equal(t, []string{events.ReservationExpiredType}, f.pub.types())

	balance, err := f.domain.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// Work that completed after expiry is still billed.
	s, err := f.domain.Settle(ctx, "acct", r.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(70), s.Balance)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct", 100)

	r, err := f.domain.Authorize(ctx, "acct", 50)
	require.NoError(t, err)
	f.domain.now = func() time.Time { return r.ExpiresAt.Add(time.Second) }

	s := NewSweeper(f.domain, 10*time.Millisecond, zap.NewNop())
	s.Start()
	s.Start()

	require.Eventually(t, func() bool {
		stored, err := f.store.GetReservation(ctx, r.ID)
		return err == nil && stored.Status == model.ReservationStatusExpired
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	t.Run("restarts after stop", func(t *testing.T) {
		r2, err := f.domain.Authorize(ctx, "acct", 50)
		require.NoError(t, err)
		f.domain.now = func() time.Time { return r2.ExpiresAt.Add(time.Second) }

		s.Start()
		require.Eventually(t, func() bool {
			stored, err := f.store.GetReservation(ctx, r2.ID)
			return err == nil && stored.Status == model.ReservationStatusExpired
		}, time.Second, 10*time.Millisecond)

		assert.NotPanics(t, s.Stop)
	})
}
