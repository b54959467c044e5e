package ratelimit

import (
	"context"
	"log/slog"

	"formvault/pkg/platform/circuit"
)

// FailoverLimiter keeps limiting while the primary store is down. Every call
// still goes to the primary; once the breaker opens, decisions come from the
// in-process fallback until enough primary calls succeed again. Fallback
// decisions are marked Degraded.
type FailoverLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailoverLimiter(primary, fallback Limiter, logger *slog.Logger, opts ...circuit.Option) *FailoverLimiter {
	return &FailoverLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("submit-rate-limit", opts...),
		logger:   logger,
	}
}

func (l *FailoverLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	result, err := l.primary.Allow(ctx, key)
	if err != nil {
		useFallback, change := l.breaker.RecordFailure()
		if change.Opened {
			l.logger.WarnContext(ctx, "rate limit store failing; switching to in-memory fallback",
				"breaker", l.breaker.Name(),
				"error", err,
			)
		}
		if !useFallback {
			return nil, err
		}
		return l.degraded(ctx, key)
	}

	usePrimary, change := l.breaker.RecordSuccess()
	if change.Closed {
		l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
	}
	if !usePrimary {
		return l.degraded(ctx, key)
	}
	return result, nil
}

func (l *FailoverLimiter) degraded(ctx context.Context, key string) (*Result, error) {
	result, err := l.fallback.Allow(ctx, key)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	return result, nil
}
