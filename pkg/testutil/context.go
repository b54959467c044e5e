package testutil

import (
	"net/http"
	"time"

	"formvault/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, the way the request time
// middleware would.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithClient attaches client IP and User-Agent metadata to the request context.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
