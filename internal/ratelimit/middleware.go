package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"formvault/internal/platform/metrics"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/httputil"
	"formvault/pkg/requestcontext"
)

// Middleware rejects clients that exceed the limiter with 429. Limiter errors
// fail open: the request is served and the error logged.
type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type MiddlewareOption func(*Middleware)

func WithMetrics(m *metrics.Metrics) MiddlewareOption {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) MiddlewareOption {
	return func(mw *Middleware) {
		mw.disabled = disabled
	}
}

func NewMiddleware(limiter Limiter, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	mw := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(mw)
	}
	if mw.limiter == nil {
		mw.disabled = true
	}
	if mw.disabled {
		logger.Info("submission rate limiting disabled")
	}
	return mw
}

// Handler limits requests per client IP.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = "unknown"
		}

		result, err := m.limiter.Allow(ctx, ip)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if result.Degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}

		if !result.Allowed {
			m.metrics.IncrementSubmitRateLimited()
			m.logger.WarnContext(ctx, "submission rate limited",
				"request_id", requestcontext.RequestID(ctx),
				"retry_after_s", result.RetryAfterSeconds(),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited,
				"too many submissions from this address; please try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
