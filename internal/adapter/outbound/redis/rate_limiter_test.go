package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*rateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimiter(client).(*rateLimiter), mr
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "acct-1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}

		ok, err := rl.Allow(ctx, "acct-1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		remaining, err := rl.GetRemaining(ctx, "acct-1", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		ok, err := rl.Allow(ctx, "a", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rl.Allow(ctx, "b", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("window slides", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rl.now = func() time.Time { return now }

		ok, _ := rl.Allow(ctx, "acct", 1, time.Minute)
		assert.True(t, ok)
		ok, _ = rl.Allow(ctx, "acct", 1, time.Minute)
		assert.False(t, ok)

		now = now.Add(61 * time.Second)
		ok, err := rl.Allow(ctx, "acct", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("allowN is all or nothing", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		ok, err := rl.AllowN(ctx, "acct", 4, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rl.AllowN(ctx, "acct", 2, 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		remaining, err := rl.GetRemaining(ctx, "acct", 5, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := rl.Allow(ctx, "hot", 10, time.Minute); err == nil && ok {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(10), allowed.Load())
	})

	t.Run("redis down", func(t *testing.T) {
		rl, mr := newTestLimiter(t)
		mr.Close()
		_, err := rl.Allow(ctx, "acct", 1, time.Minute)
		assert.Error(t, err)
	})
}
