// Package httputil writes JSON responses and maps domain errors onto HTTP.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "formvault/pkg/domain-errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and writes the error body. Internal
// errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	resp := ErrorResponse{Error: string(code)}
	if de, ok := dErrors.As(err); ok && status < http.StatusInternalServerError {
		resp.Description = de.Message
	}
	if code == dErrors.CodeStoreBusy || code == dErrors.CodeStoreUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, resp)
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeDuplicateSubmission, dErrors.CodeConstraintViolation:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeStoreBusy, dErrors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
