package middleware_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/lifelink/lifelink/internal/api/middleware"
)

func TestSecurityHeaders(t *testing.T) {
	rec := serve(middleware.SecurityHeaders(okHandler()), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotContains(t, rec.Header().Get("Permissions-Policy"), "geolocation")
}

func TestRequireTLS(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		proto   string
		tls     bool
		status  int
	}{
		{"disabled allows http", false, "http", false, http.StatusOK},
		{"forwarded http rejected", true, "http", false, http.StatusForbidden},
		{"forwarded https allowed", true, "https", false, http.StatusOK},
		{"direct tls allowed", true, "http", true, http.StatusOK},
		{"no header allowed", true, "", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}

			rec := serve(middleware.RequireTLS(tt.enabled)(okHandler()), req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "tls-required")
			}
		})
	}
}

func TestRequireContentType(t *testing.T) {
	handler := middleware.RequireContentType("application/json", "multipart/form-data")(okHandler())

	tests := []struct {
		name   string
		method string
		ct     string
		body   string
		status int
	}{
		{"json", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusOK},
		{"multipart", http.MethodPost, "multipart/form-data; boundary=x", "--x--", http.StatusOK},
		{"xml", http.MethodPut, "application/xml", "<a/>", http.StatusUnsupportedMediaType},
		{"malformed", http.MethodPost, "///", "{}", http.StatusUnsupportedMediaType},
		{"get ignored", http.MethodGet, "text/plain", "", http.StatusOK},
		{"no body", http.MethodPost, "text/plain", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/me/vitals", stringsReader(tt.body))
			req.Header.Set("Content-Type", tt.ct)
			assert.Equal(t, tt.status, serve(handler, req).Code)
		})
	}
}

func TestContentTypeJSON_DefaultsHeader(t *testing.T) {
	rec := serve(middleware.ContentTypeJSON(okHandler()), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRecovery(t *testing.T) {
	handler := middleware.RequestID(middleware.Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "an unexpected error occurred")
}
