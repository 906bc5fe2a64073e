// Package ratelimit throttles the public acknowledgment endpoints per client IP
// using fixed windows. Redis backs the counters when configured; an in-process
// go-cache store serves otherwise and while Redis is unreachable.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Result is the outcome of a single limiter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, never
// less than one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts one request against key and reports whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Policy is the request budget per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// window returns the bucket key for now and when that bucket resets.
func (p Policy) window(prefix, key string, now time.Time) (string, time.Time) {
	size := p.Window.Nanoseconds()
	start := now.UnixNano() / size * size
	return prefix + key + ":" + strconv.FormatInt(start, 10), time.Unix(0, start+size)
}

func (p Policy) result(count int, resetAt time.Time) Result {
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
