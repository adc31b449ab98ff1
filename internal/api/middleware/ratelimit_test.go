package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lifelink/lifelink/internal/api/middleware"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	newReq := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", http.NoBody)
		req.RemoteAddr = ip
		return req
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, newReq("10.0.0.1:12345")).Code, "request %d", i+1)
	}

	rec := serve(handler, newReq("10.0.0.1:12345"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too-many-requests")
	assert.Contains(t, rec.Body.String(), "/v1/auth/login")

	assert.Equal(t, http.StatusOK, serve(handler, newReq("10.0.0.2:12345")).Code)
}

func TestRateLimitByUser_KeysOnUser(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: 30 * time.Second}
	handler := middleware.RateLimitByUser(cfg)(okHandler())

	newReq := func(userID, ip string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
		req.RemoteAddr = ip
		return req.WithContext(middleware.WithUserID(req.Context(), userID))
	}

	// Same user from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, serve(handler, newReq("usr_1", "192.168.1.1:1")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, newReq("usr_1", "192.168.1.2:1")).Code)

	rec := serve(handler, newReq("usr_1", "192.168.1.3:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(handler, newReq("usr_2", "192.168.1.1:1")).Code)
}

func TestRateLimitByUser_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitByUser(cfg)(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/content/about", http.NoBody)
		r.RemoteAddr = "172.16.0.1:1"
		return r
	}

	assert.Equal(t, http.StatusOK, serve(handler, req()).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, req()).Code)
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 10, middleware.AuthRateLimit.RequestLimit)
	assert.Equal(t, 30, middleware.UploadRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
