package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formvault/pkg/platform/circuit"
	httptestutil "formvault/pkg/testutil"
)

// flakyLimiter fails while down is set and otherwise allows everything.
type flakyLimiter struct {
	down  bool
	calls int
}

func (f *flakyLimiter) Allow(context.Context, string) (*Result, error) {
	f.calls++
	if f.down {
		return nil, errors.New("connection refused")
	}
	return &Result{Allowed: true, Limit: 100, Remaining: 99}, nil
}

func TestFailoverLimiter(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	primary := &flakyLimiter{down: true}
	l := NewFailoverLimiter(primary, NewInMemoryLimiter(3, time.Minute), logger,
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(2),
	)

	_, err := l.Allow(ctx, "10.0.0.1")
	require.Error(t, err, "a single failure stays on the primary")

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 3, res.Limit)
	assert.Equal(t, 2, res.Remaining)

	primary.down = false
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Degraded, "one success does not close the breaker")
	assert.Equal(t, 1, res.Remaining)

	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 4, primary.calls, "the primary is probed while degraded")
}

func TestFailoverLimiterFallbackEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	l := NewFailoverLimiter(&flakyLimiter{down: true}, NewInMemoryLimiter(1, time.Minute), logger,
		circuit.WithFailureThreshold(1),
	)

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestMiddlewareMarksDegradedDecisions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	l := NewFailoverLimiter(&flakyLimiter{down: true}, NewInMemoryLimiter(5, time.Minute), logger,
		circuit.WithFailureThreshold(1),
	)
	mw := NewMiddleware(l, logger)

	req := withClientIP(httptestutil.NewRequest(t, http.MethodPost, "/submit"), "10.0.0.1")
	rr := httptestutil.DoRequest(mw.Handler(okHandler()), req)
	httptestutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Equal(t, "degraded", rr.Header().Get("X-RateLimit-Status"))
	assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
}
