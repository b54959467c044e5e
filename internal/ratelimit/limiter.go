// Package ratelimit bounds how often a client may submit forms.
//
// Two limiters share the Limiter contract: RedisLimiter counts in fixed
// windows shared by every server instance; InMemoryLimiter keeps a sliding
// window per key in process memory for single-instance deployments and tests.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set when the request was refused.
	RetryAfter time.Duration
	// Degraded marks a decision made by a fallback limiter.
	Degraded bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (r *Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts one request against key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

type config struct {
	now    func() time.Time
	prefix string
}

type Option func(*config)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithKeyPrefix namespaces Redis keys; the default is "formvault:ratelimit:submit".
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

func newConfig(opts []Option) config {
	c := config{now: time.Now, prefix: "formvault:ratelimit:submit"}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
