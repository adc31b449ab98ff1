package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lifelink/lifelink/internal/api/middleware"
	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
)

// requestWithContext returns a request that has passed through the
// RequestID middleware.
func requestWithContext(t *testing.T, method, path, body string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))

	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), req)

	return processed, httptest.NewRecorder()
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/content/about", "")

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if id := rec.Header().Get("X-Request-Id"); !strings.HasPrefix(id, "req_") {
		t.Errorf("expected X-Request-Id header, got %q", id)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	if id := rec.Header().Get("X-Request-Id"); id != "" {
		t.Errorf("expected no X-Request-Id header, got %q", id)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestCreated_SetsLocation(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/me/contacts", "")

	response.Created(rec, req, "/v1/me/contacts/con_1", map[string]string{"id": "con_1"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/me/contacts/con_1" {
		t.Errorf("expected Location header, got %q", loc)
	}
}

func TestNoContent(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodDelete, "/v1/me/contacts/con_1", "")
	rec.Header().Set("Content-Type", "application/json")

	response.NoContent(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for 204, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		t.Errorf("expected no Content-Type on 204, got %q", ct)
	}
}

func TestDecode(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		ok         bool
		status     int
	}{
		{"valid", `{"name":"Ada"}`, false, true, 0},
		{"empty required", "", false, false, http.StatusBadRequest},
		{"empty allowed", "", true, true, 0},
		{"malformed", `{"name":`, false, false, http.StatusBadRequest},
		{"too large", `{"name":"` + strings.Repeat("a", response.MaxJSONBody) + `"}`, false, false, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodPost, "/v1/me/profile", tt.body)

			var dst body
			ok := response.Decode(rec, req, &dst, tt.allowEmpty)

			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok && rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.name == "valid" && dst.Name != "Ada" {
				t.Errorf("expected decoded name, got %q", dst.Name)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "bad", []models.FieldError{{Field: "email", Message: "required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { response.Unauthorized(w, r, "no") }, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { response.Forbidden(w, r, "no") }, http.StatusForbidden, models.ProblemTypeForbidden},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "gone") }, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "dup") }, http.StatusConflict, models.ProblemTypeConflict},
		{"too large", func(w http.ResponseWriter, r *http.Request) { response.PayloadTooLarge(w, r, "big") }, http.StatusRequestEntityTooLarge, models.ProblemTypeTooLarge},
		{"too many", func(w http.ResponseWriter, r *http.Request) { response.TooManyRequests(w, r, "slow") }, http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{"internal", func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "oops") }, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "down") }, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/me", "")

			tt.write(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("expected problem+json, got %q", ct)
			}

			var problem models.Problem
			if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
				t.Fatalf("decoding problem: %v", err)
			}
			if problem.Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, problem.Type)
			}
			if problem.Instance != "/v1/me" {
				t.Errorf("expected instance /v1/me, got %q", problem.Instance)
			}
			if !strings.HasPrefix(problem.TraceID, "req_") {
				t.Errorf("expected trace ID from request, got %q", problem.TraceID)
			}
		})
	}
}
