package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/api/middleware"
)

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response body"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/content/about", http.NoBody)
	req.Header.Set("User-Agent", "test-agent")
	serve(handler, req)

	entry := decodeLog(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/content/about", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(13), entry["bytes"])
	assert.Equal(t, "test-agent", entry["user_agent"])
	assert.Contains(t, entry["request_id"], "req_")
	assert.NotContains(t, entry, "user_id")
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := map[int]string{
		http.StatusOK:                  "info",
		http.StatusNotFound:            "warn",
		http.StatusInternalServerError: "error",
	}

	for status, level := range tests {
		var buf bytes.Buffer
		handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		serve(handler, httptest.NewRequest(http.MethodPost, "/v1/me/vitals", http.NoBody))

		entry := decodeLog(t, &buf)
		assert.Equal(t, level, entry["level"], "status %d", status)
		assert.Equal(t, float64(status), entry["status"])
	}
}

func TestLogger_RouteAndUserFromInnerMiddleware(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), "usr_42")))
		})
	}).Get("/v1/me/alerts/{alertID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/me/alerts/alt_1", http.NoBody))

	entry := decodeLog(t, &buf)
	assert.Equal(t, "/v1/me/alerts/{alertID}", entry["route"])
	assert.Equal(t, "/v1/me/alerts/alt_1", entry["path"])
	assert.Equal(t, "usr_42", entry["user_id"])
}

func TestLogger_IncludesTraceID(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	handler := middleware.Tracing("lifelink-api")(middleware.Logger(zerolog.New(&buf))(okHandler()))
	serve(handler, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	entry := decodeLog(t, &buf)
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}
