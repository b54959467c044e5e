package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formvault/internal/platform/metrics"
	"formvault/pkg/requestcontext"
	httptestutil "formvault/pkg/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewInMemoryLimiter(2, time.Minute, WithClock(clock.Now))

	first, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	clock.Advance(10 * time.Second)
	second, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	denied, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 50*time.Second, denied.RetryAfter)
	assert.Equal(t, 50, denied.RetryAfterSeconds())

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")

	clock.Advance(51 * time.Second)
	again, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, again.Allowed, "oldest request left the window")
	assert.Equal(t, 0, again.Remaining)
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 1, (&Result{}).RetryAfterSeconds())
	assert.Equal(t, 2, (&Result{RetryAfter: 1100 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 3, (&Result{RetryAfter: 3 * time.Second}).RetryAfterSeconds())
}

type limiterFunc func(ctx context.Context, key string) (*Result, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (*Result, error) {
	return f(ctx, key)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func withClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test-agent"))
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("refuses clients over the limit", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		mw := NewMiddleware(NewInMemoryLimiter(1, time.Minute), logger, WithMetrics(m))
		h := mw.Handler(okHandler())

		req := withClientIP(httptestutil.NewRequest(t, http.MethodPost, "/submit"), "10.0.0.1")
		rr := httptestutil.DoRequest(h, req)
		httptestutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

		req = withClientIP(httptestutil.NewRequest(t, http.MethodPost, "/submit"), "10.0.0.1")
		rr = httptestutil.DoRequest(h, req)
		httptestutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmitRateLimited))
	})

	t.Run("fails open when the limiter errors", func(t *testing.T) {
		mw := NewMiddleware(limiterFunc(func(context.Context, string) (*Result, error) {
			return nil, errors.New("redis down")
		}), logger)
		req := withClientIP(httptestutil.NewRequest(t, http.MethodPost, "/submit"), "10.0.0.1")
		rr := httptestutil.DoRequest(mw.Handler(okHandler()), req)
		httptestutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("missing client ip shares one bucket", func(t *testing.T) {
		var keys []string
		mw := NewMiddleware(limiterFunc(func(_ context.Context, key string) (*Result, error) {
			keys = append(keys, key)
			return &Result{Allowed: true, Limit: 5, Remaining: 4}, nil
		}), logger)
		rr := httptestutil.DoRequest(mw.Handler(okHandler()), httptestutil.NewRequest(t, http.MethodPost, "/submit"))
		httptestutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, []string{"unknown"}, keys)
	})

	t.Run("nil limiter disables limiting", func(t *testing.T) {
		mw := NewMiddleware(nil, logger)
		rr := httptestutil.DoRequest(mw.Handler(okHandler()), httptestutil.NewRequest(t, http.MethodPost, "/submit"))
		httptestutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	})
}
