package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"formvault/internal/intake/models"
	"formvault/internal/outbox"
	"formvault/internal/platform/metrics"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

const tracerName = "formvault/internal/intake/service"

// Service orchestrates submission intake, lookups and administrative
// operations over the store and the upload root.
type Service struct {
	repo    Repository
	files   FileStore
	events  EventRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEvents appends outbox events in the same transaction as each write.
func WithEvents(events EventRecorder) Option {
	return func(s *Service) {
		s.events = events
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(repo Repository, files FileStore, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		files:  files,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return translateStoreErr(err, "ping store")
	}
	return nil
}

// recordEvent is a no-op unless WithEvents was given. It must be called inside
// RunInTx so the event shares the write's fate.
func (s *Service) recordEvent(ctx context.Context, eventType string, personID int64, payload any) error {
	if s.events == nil {
		return nil
	}
	event, err := outbox.NewEvent("person", strconv.FormatInt(personID, 10), eventType, payload, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
	}
	if err := s.events.Append(ctx, event); err != nil {
		return translateStoreErr(err, "append event")
	}
	return nil
}

func (s *Service) submissionEvent(ctx context.Context, sub *models.Submission) models.SubmissionEvent {
	return models.SubmissionEvent{
		SubmissionID: sub.ID,
		PersonID:     sub.PersonID,
		Sequence:     sub.Sequence,
		FullName:     sub.FullName,
		Bank:         sub.Bank,
		IDFilePath:   sub.IDFilePath,
		Timestamp:    sub.Timestamp.Format(time.RFC3339Nano),
		RequestID:    requestcontext.RequestID(ctx),
		Client:       clientInfo(ctx),
	}
}

// clientInfo summarizes the request's client for event payloads.
func clientInfo(ctx context.Context) *models.ClientInfo {
	ip := requestcontext.ClientIP(ctx)
	raw := requestcontext.UserAgent(ctx)
	if ip == "" && raw == "" {
		return nil
	}
	info := &models.ClientInfo{IP: ip}
	if raw != "" {
		ua := useragent.New(raw)
		info.Browser, info.Version = ua.Browser()
		info.OS = ua.OS()
		info.Mobile = ua.Mobile()
		info.Bot = ua.Bot()
	}
	return info
}

// translateStoreErr maps sentinel errors onto domain codes. Errors that
// already carry a code pass through untouched.
func translateStoreErr(err error, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrBusy):
		return dErrors.Wrap(err, dErrors.CodeStoreBusy, "store is busy, retry the request")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "store is unavailable")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConstraintViolation, "failed to "+action)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action+" timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
