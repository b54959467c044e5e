package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"formvault/internal/platform/metrics"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Relay moves pending outbox events to a Publisher.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays batches every interval until ctx is cancelled. A full batch is
// followed immediately by another one. Publish failures are logged and retried
// on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				}
				break
			}
			if n < r.batchSize {
				break
			}
		}
	}
}

// ProcessBatch publishes at most one batch and reports its size.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	n, err := r.store.Process(ctx, r.batchSize, r.publisher.Publish)
	if err != nil {
		r.metrics.IncrementOutboxPublishErrors()
		return 0, err
	}
	if n > 0 {
		r.metrics.AddOutboxPublished(n)
		r.logger.DebugContext(ctx, "outbox batch published", "count", n)
	}
	return n, nil
}
