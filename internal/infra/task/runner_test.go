package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunner_Go(t *testing.T) {
	r := NewRunner(zap.NewNop(), &Config{MaxConcurrent: 2, Timeout: time.Second})

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, r.Go("count", func(ctx context.Context) {
			count.Add(1)
		}))
	}

	r.Stop()
	assert.Equal(t, int32(10), count.Load())
}

func TestRunner_DetachedContext(t *testing.T) {
	r := NewRunner(zap.NewNop(), &Config{MaxConcurrent: 1, Timeout: 50 * time.Millisecond})

	done := make(chan error, 1)
	r.Go("deadline", func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		<-ctx.Done()
		done <- ctx.Err()
	})

	r.Stop()
	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}

func TestRunner_StopRejectsNewWork(t *testing.T) {
	r := NewRunner(nil, nil)
	r.Stop()

	assert.False(t, r.Go("late", func(ctx context.Context) {
		t.Error("should not run")
	}))

	// Stop is idempotent.
	r.Stop()
}

func TestRunner_RecoversPanic(t *testing.T) {
	r := NewRunner(zap.NewNop(), nil)

	var ran atomic.Bool
	r.Go("panics", func(ctx context.Context) { panic("boom") })
	r.Go("after", func(ctx context.Context) { ran.Store(true) })

	r.Stop()
	assert.True(t, ran.Load())
}
