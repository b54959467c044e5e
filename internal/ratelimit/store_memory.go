package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryLimiter keeps a sliding window of request times per key. It is not
// shared between processes.
type InMemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	cfg     config
}

func NewInMemoryLimiter(limit int, window time.Duration, opts ...Option) *InMemoryLimiter {
	return &InMemoryLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		cfg:     newConfig(opts),
	}
}

func (l *InMemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.cfg.now()
	stamps := prune(l.windows[key], now.Add(-l.window))

	if len(stamps) >= l.limit {
		l.windows[key] = stamps
		resetAt := stamps[0].Add(l.window)
		return &Result{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	stamps = append(stamps, now)
	l.windows[key] = stamps
	return &Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(stamps),
		ResetAt:   stamps[0].Add(l.window),
	}, nil
}

// prune drops timestamps at or before cutoff.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
