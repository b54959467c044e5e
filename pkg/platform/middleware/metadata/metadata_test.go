package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"formvault/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{name: "first forwarded address", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:1234", expected: "203.0.113.7"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 198.51.100.4 "}, remote: "10.0.0.2:1234", expected: "198.51.100.4"},
		{name: "remote addr ipv4", remote: "192.0.2.10:5555", expected: "192.0.2.10"},
		{name: "remote addr ipv6", remote: "[::1]:5555", expected: "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:80"
	req.Header.Set("User-Agent", "curl/8.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.1", gotIP)
	assert.Equal(t, "curl/8.0", gotUA)
}
