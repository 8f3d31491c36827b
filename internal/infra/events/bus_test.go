package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to subscribed handlers only", func(t *testing.T) {
		bus := NewBus(zap.NewNop())

		var issued []Event
		var deficits int
		bus.Subscribe(CreditsIssuedType, func(_ context.Context, e Event) error {
			issued = append(issued, e)
			return nil
		})
		bus.Subscribe(DeficitRecordedType, func(_ context.Context, _ Event) error {
			deficits++
			return nil
		})

		bus.Publish(ctx, NewCreditsIssuedEvent("u1", "evt-1", "paypal", 5000, 5000))

		assert.Len(t, issued, 1)
		assert.Equal(t, "u1", issued[0].AccountID())
		assert.Equal(t, 0, deficits)
	})

	t.Run("failing handler does not stop the rest", func(t *testing.T) {
		bus := NewBus(nil)

		calls := 0
		bus.Subscribe(DeficitRecordedType, func(_ context.Context, _ Event) error {
			return errors.New("boom")
		})
		bus.Subscribe(DeficitRecordedType, func(_ context.Context, _ Event) error {
			panic("worse")
		})
		bus.Subscribe(DeficitRecordedType, func(_ context.Context, _ Event) error {
			calls++
			return nil
		})

		assert.NotPanics(t, func() {
			bus.Publish(ctx, NewDeficitRecordedEvent("u1", "r1", 600, 100))
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("no handlers is a no-op", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NotPanics(t, func() {
			bus.Publish(ctx, NewReservationsExpiredEvent(3))
		})
	})
}

func TestBaseEvent(t *testing.T) {
	e := NewAmbiguousQueuedEvent("acct", "res-1", "timeout")

	assert.Equal(t, AmbiguousQueuedType, e.EventType())
	assert.Equal(t, "acct", e.AccountID())
	assert.NotEqual(t, e.EventID().String(), "")
	assert.False(t, e.OccurredAt().IsZero())
}
