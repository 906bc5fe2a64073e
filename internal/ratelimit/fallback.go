package ratelimit

import (
	"context"
	"log/slog"

	"crummey/pkg/platform/circuit"
)

// FallbackLimiter answers from primary until it fails repeatedly, then serves
// from the in-memory limiter until primary recovers.
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackLimiter(primary, fallback Limiter, logger *slog.Logger) *FallbackLimiter {
	return &FallbackLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("ratelimit", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(3)),
		logger:   logger,
	}
}

// Degraded reports whether checks are currently served by the fallback.
func (f *FallbackLimiter) Degraded() bool {
	return f.breaker.IsOpen()
}

func (f *FallbackLimiter) Allow(ctx context.Context, key string) (Result, error) {
	result, err := f.primary.Allow(ctx, key)
	if err == nil {
		usePrimary, change := f.breaker.RecordSuccess()
		if change.Closed {
			f.logger.InfoContext(ctx, "rate limiter recovered, using primary store")
		}
		if usePrimary {
			return result, nil
		}
		return f.fallback.Allow(ctx, key)
	}

	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.WarnContext(ctx, "rate limiter degraded, using in-memory store", "error", err)
	}
	return f.fallback.Allow(ctx, key)
}
