package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryLimiter keeps window counters in process. Counters expire with their
// window, so the cache never grows past one entry per active client.
type MemoryLimiter struct {
	policy Policy
	cache  *cache.Cache
	now    func() time.Time
	mu     sync.Mutex
}

func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{
		policy: policy,
		cache:  cache.New(policy.Window, 2*policy.Window),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()
	bucket, resetAt := l.policy.window("", key, now)

	// Add and IncrementInt are individually atomic; the lock closes the gap
	// between a failed Add and an expiry.
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 1
	if err := l.cache.Add(bucket, 1, resetAt.Sub(now)); err != nil {
		n, incErr := l.cache.IncrementInt(bucket, 1)
		if incErr != nil {
			l.cache.Set(bucket, 1, resetAt.Sub(now))
		} else {
			count = n
		}
	}
	return l.policy.result(count, resetAt), nil
}
