package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/api/middleware"
	"github.com/lifelink/lifelink/internal/auth"
)

func testJWT() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.lifelink.app",
		Audience:   "lifelink-api",
	})
}

type jwtValidator struct{ jwt *auth.JWTService }

func (v jwtValidator) ValidateAccessToken(token string) (string, error) {
	claims, err := v.jwt.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

type adminSet map[string]bool

func (a adminSet) IsAdmin(_ context.Context, userID string) (bool, error) {
	if userID == "usr_broken" {
		return false, errors.New("db down")
	}
	return a[userID], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_RejectsBadHeaders(t *testing.T) {
	handler := middleware.Auth(jwtValidator{testJWT()})(okHandler())

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing", "", "missing authorization header"},
		{"no bearer prefix", "token123", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "missing bearer token"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"garbage token", "Bearer invalid.jwt.token", "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestAuth_ValidTokenSetsUser(t *testing.T) {
	jwt := testJWT()
	token, _, err := jwt.GenerateAccessToken(&auth.User{ID: "usr_123", Email: "ada@example.com"})
	require.NoError(t, err)

	var captured string
	handler := middleware.Auth(jwtValidator{jwt})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = middleware.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			captured = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/me", http.NoBody)
			req.Header.Set("Authorization", prefix+token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "usr_123", captured)
		})
	}
}

func TestGetUserID_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetUserID(req.Context()))
}

func TestRequireAdmin(t *testing.T) {
	admins := adminSet{"usr_admin": true}
	handler := middleware.RequireAdmin(admins, zerolog.Nop())(okHandler())

	tests := []struct {
		name   string
		userID string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regular user", "usr_1", http.StatusForbidden},
		{"admin", "usr_admin", http.StatusOK},
		{"lookup failure", "usr_broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/admin/content/about", http.NoBody)
			if tt.userID != "" {
				req = req.WithContext(middleware.WithUserID(req.Context(), tt.userID))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
