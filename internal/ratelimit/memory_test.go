package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)

	t.Run("allows up to the limit then rejects", func(t *testing.T) {
		l := NewMemoryLimiter(Policy{Limit: 3, Window: time.Minute})
		l.now = func() time.Time { return start }

		for i := 1; i <= 3; i++ {
			res, err := l.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 3-i, res.Remaining)
		}
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
		assert.Equal(t, 60, res.RetryAfter(start))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewMemoryLimiter(Policy{Limit: 1, Window: time.Minute})
		l.now = func() time.Time { return start }

		res, _ := l.Allow(ctx, "10.0.0.1")
		assert.True(t, res.Allowed)
		res, _ = l.Allow(ctx, "10.0.0.2")
		assert.True(t, res.Allowed)
		res, _ = l.Allow(ctx, "10.0.0.1")
		assert.False(t, res.Allowed)
	})

	t.Run("next window starts a fresh count", func(t *testing.T) {
		l := NewMemoryLimiter(Policy{Limit: 1, Window: time.Minute})
		now := start
		l.now = func() time.Time { return now }

		res, _ := l.Allow(ctx, "10.0.0.1")
		assert.True(t, res.Allowed)
		res, _ = l.Allow(ctx, "10.0.0.1")
		assert.False(t, res.Allowed)

		now = start.Add(61 * time.Second)
		res, _ = l.Allow(ctx, "10.0.0.1")
		assert.True(t, res.Allowed)
	})

	t.Run("concurrent requests never exceed the limit", func(t *testing.T) {
		l := NewMemoryLimiter(Policy{Limit: 10, Window: time.Minute})
		l.now = func() time.Time { return start }

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.Allow(ctx, "10.0.0.9")
				if err == nil && res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 10, allowed)
	})
}

func TestRetryAfterIsAtLeastOneSecond(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1, Result{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
	assert.Equal(t, 2, Result{ResetAt: now.Add(1500 * time.Millisecond)}.RetryAfter(now))
}
