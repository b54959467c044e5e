// Package intake assembles the form intake module: identity reconciliation,
// submission recording, photo storage, lookups and PDF export.
package intake

import (
	"log/slog"

	"formvault/internal/intake/handler"
	"formvault/internal/intake/pdf"
	"formvault/internal/intake/service"
	"formvault/internal/intake/uploads"
	"formvault/internal/platform/metrics"
)

// Service exposes intake orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the intake service.
type Handler = handler.Handler

// HandlerConfig carries the HTTP limits and redirect target.
type HandlerConfig = handler.Config

// NewService constructs the intake service with its required dependencies.
func NewService(repo service.Repository, files *uploads.Relocator, opts ...service.Option) *Service {
	return service.New(repo, files, opts...)
}

// NewHandler constructs the HTTP handler with a PDF renderer reading from files.
func NewHandler(s *Service, files *uploads.Relocator, logger *slog.Logger, m *metrics.Metrics, cfg HandlerConfig) *Handler {
	renderer := pdf.New(files, pdf.WithLogger(logger), pdf.WithMetrics(m))
	return handler.New(s, renderer, files, logger, cfg)
}
