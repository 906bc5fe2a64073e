package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "crummey:ratelimit:"

// RedisLimiter shares window counters across server instances.
type RedisLimiter struct {
	policy Policy
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, policy Policy) *RedisLimiter {
	return &RedisLimiter{policy: policy, client: client, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	bucket, resetAt := l.policy.window(redisKeyPrefix, key, l.now())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucket)
		pipe.ExpireAt(ctx, bucket, resetAt)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("increment rate limit window: %w", err)
	}
	return l.policy.result(int(incr.Val()), resetAt), nil
}
