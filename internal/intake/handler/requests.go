package handler

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	dErrors "formvault/pkg/domain-errors"
)

const (
	defaultMaxUploadBytes = 12 << 20
	// Multipart parts beyond this spill to temporary files.
	multipartMemory = 1 << 20
	photoField      = "idPhoto"
)

// SubmitRequest is the parsed multipart body of POST /submit.
type SubmitRequest struct {
	FirstName string
	LastName  string
	Bank      string

	photo    multipart.File
	filename string
}

// Form returns the user-entered fields.
func (r *SubmitRequest) Form() models.Form {
	return models.Form{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Bank:      r.Bank,
	}
}

// Photo returns the uploaded ID photo, or nil when none was sent.
func (r *SubmitRequest) Photo() *service.Photo {
	if r.photo == nil {
		return nil
	}
	return &service.Photo{Content: r.photo, Filename: r.filename}
}

// parseSubmitRequest reads the multipart form. The returned cleanup closes
// the photo and removes spilled parts; it is safe to call on error.
func parseSubmitRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (*SubmitRequest, func(), error) {
	req := &SubmitRequest{}
	cleanup := func() {
		if req.photo != nil {
			_ = req.photo.Close()
		}
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, cleanup, dErrors.New(dErrors.CodeBadRequest, "request must be multipart/form-data")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, cleanup, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", maxBytes))
		}
		return nil, cleanup, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed multipart body")
	}

	req.FirstName = r.FormValue("firstName")
	req.LastName = r.FormValue("lastName")
	req.Bank = r.FormValue("bank")

	file, header, err := r.FormFile(photoField)
	switch {
	case err == nil:
		req.photo = file
		req.filename = header.Filename
	case errors.Is(err, http.ErrMissingFile):
	default:
		return nil, cleanup, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable idPhoto")
	}
	return req, cleanup, nil
}

// submissionIDParam returns the {id} path value. Submission ids contain
// spaces, so an id that reached the router still escaped is unescaped here.
func submissionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if strings.Contains(id, "%") {
		unescaped, err := url.PathUnescape(id)
		if err != nil {
			return "", dErrors.New(dErrors.CodeBadRequest, "malformed submission id")
		}
		id = unescaped
	}
	if strings.TrimSpace(id) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "submission id is required")
	}
	return id, nil
}

func personIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "person id must be a positive integer")
	}
	return id, nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
