package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/httputil"
	"formvault/pkg/requestcontext"
)

// Service defines the intake operations the HTTP layer needs.
type Service interface {
	Submit(ctx context.Context, form models.Form, photo *service.Photo) (*models.Submission, error)
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	CountSubmissions(ctx context.Context) (int, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	ListPeople(ctx context.Context) ([]*models.Person, error)
	DeletePerson(ctx context.Context, id int64) (*service.DeleteResult, error)
	Reset(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// Renderer writes a submission as PDF.
type Renderer interface {
	Render(ctx context.Context, w io.Writer, sub *models.Submission) error
}

// Opener opens stored photos by name.
type Opener interface {
	Open(name string) (*os.File, error)
}

// Config holds the request limits and redirect target of the handler.
type Config struct {
	ThankYouURL    string
	MaxUploadBytes int64
}

// Handler wires intake endpoints to the intake service.
type Handler struct {
	service  Service
	renderer Renderer
	files    Opener
	logger   *slog.Logger
	cfg      Config
}

// New constructs an intake handler with its dependencies.
func New(service Service, renderer Renderer, files Opener, logger *slog.Logger, cfg Config) *Handler {
	if cfg.ThankYouURL == "" {
		cfg.ThankYouURL = "/thank-you.html"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:  service,
		renderer: renderer,
		files:    files,
		logger:   logger,
		cfg:      cfg,
	}
}

// Register mounts intake endpoints on the router. submit wraps POST /submit
// only, so rate limiting can be applied to intake without touching lookups.
func (h *Handler) Register(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.With(submit...).Post("/submit", h.HandleSubmit)
	r.Get("/submissions", h.HandleListSubmissions)
	r.Get("/submissions/{id}", h.HandleGetSubmission)
	r.Get("/submission-count", h.HandleCountSubmissions)
	r.Get("/people", h.HandleListPeople)
	r.Get("/person/{id}", h.HandleGetPerson)
	r.Delete("/people/{id}", h.HandleDeletePerson)
	r.Get("/pdf/{id}", h.HandleExportPDF)
	r.Get("/uploads/{name}", h.HandlePhoto)
	r.Post("/reset-database", h.HandleReset)
	r.Get("/healthz", h.HandleHealth)
}

// HandleSubmit handles POST /submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, cleanup, err := parseSubmitRequest(w, r, h.cfg.MaxUploadBytes)
	defer cleanup()
	if err != nil {
		h.logger.WarnContext(ctx, "invalid submit request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	sub, err := h.service.Submit(ctx, req.Form(), req.Photo())
	if err != nil {
		h.logger.ErrorContext(ctx, "submission failed",
			"request_id", requestID,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "submission accepted",
		"request_id", requestID,
		"submission_id", sub.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if wantsJSON(r) {
		httputil.WriteJSON(w, http.StatusCreated, FromSubmission(sub))
		return
	}
	http.Redirect(w, r, h.cfg.ThankYouURL, http.StatusSeeOther)
}

// HandleListSubmissions handles GET /submissions.
func (h *Handler) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListSubmissions(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list submissions", err)
		return
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	httputil.WriteJSON(w, http.StatusOK, subs)
}

// HandleGetSubmission handles GET /submissions/{id}.
func (h *Handler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := submissionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.service.GetSubmission(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load submission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

// HandleCountSubmissions handles GET /submission-count.
func (h *Handler) HandleCountSubmissions(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountSubmissions(r.Context())
	if err != nil {
		h.fail(w, r, "failed to count submissions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountResponse{Count: count})
}

// HandleListPeople handles GET /people.
func (h *Handler) HandleListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.service.ListPeople(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list people", err)
		return
	}
	if people == nil {
		people = []*models.Person{}
	}
	httputil.WriteJSON(w, http.StatusOK, people)
}

// HandleGetPerson handles GET /person/{id}.
func (h *Handler) HandleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	person, err := h.service.GetPerson(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load person", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPerson(person))
}

// HandleDeletePerson handles DELETE /people/{id}.
func (h *Handler) HandleDeletePerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.DeletePerson(ctx, id)
	if err != nil {
		h.fail(w, r, "failed to delete person", err)
		return
	}
	h.logger.InfoContext(ctx, "person deleted",
		"request_id", requestcontext.RequestID(ctx),
		"person_id", result.PersonID,
		"submissions", result.Submissions,
		"files_removed", result.FilesRemoved,
	)
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{
		Status:       "deleted",
		PersonID:     result.PersonID,
		FilesRemoved: result.FilesRemoved,
	})
}

// HandleExportPDF handles GET /pdf/{id}. The document is rendered into memory
// first so a failure can still be reported as JSON.
func (h *Handler) HandleExportPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := submissionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.service.GetSubmission(ctx, id)
	if err != nil {
		h.fail(w, r, "failed to load submission for pdf", err)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.Render(ctx, &buf, sub); err != nil {
		h.fail(w, r, "failed to render pdf", dErrors.Wrap(err, dErrors.CodeInternal, "failed to render pdf"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", contentDisposition(sub.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// HandlePhoto handles GET /uploads/{name}, serving a stored ID photo. Staged
// uploads and anything outside the storage root are never served.
func (h *Handler) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	notFound := dErrors.New(dErrors.CodeNotFound, "photo not found")
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		httputil.WriteError(w, notFound)
		return
	}

	f, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.WriteError(w, notFound)
			return
		}
		h.fail(w, r, "failed to open photo", dErrors.Wrap(err, dErrors.CodeInternal, "failed to open photo"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		httputil.WriteError(w, notFound)
		return
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		h.fail(w, r, "failed to read photo", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read photo"))
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		h.fail(w, r, "failed to read photo", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read photo"))
		return
	}

	w.Header().Set("Content-Type", mt.String())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// HandleReset handles POST /reset-database.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.service.Reset(ctx)
	if err != nil {
		h.fail(w, r, "failed to reset store", err)
		return
	}
	h.logger.WarnContext(ctx, "store reset",
		"request_id", requestcontext.RequestID(ctx),
		"files_removed", removed,
	)
	httputil.WriteJSON(w, http.StatusOK, ResetResponse{Status: "reset", FilesRemoved: removed})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.fail(w, r, "health check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// fail logs err at a level matching its status and writes the error reply.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	)
	httputil.WriteError(w, err)
}
