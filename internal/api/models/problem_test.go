package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/provider/resilience"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123").
		WithDetail("oxygen must be between 0 and 100").
		WithInstance("/v1/me/vitals").
		WithErrors([]models.FieldError{{Field: "oxygen", Message: "out of range", Code: "OUT_OF_RANGE"}})

	assert.Equal(t, "oxygen must be between 0 and 100", p.Detail)
	assert.Equal(t, "/v1/me/vitals", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "email", Message: "invalid format"},
	})
	p.Instance = "/v1/me/contacts"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "/v1/me/contacts", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "email", result.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "gone").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		title   string
		status  int
	}{
		{"unauthorized", models.NewUnauthorized("req_1", "d"), models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"forbidden", models.NewForbidden("req_1", "d"), models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req_1", "d"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"too large", models.NewPayloadTooLarge("req_1", "d"), models.ProblemTypeTooLarge, "Payload too large", http.StatusRequestEntityTooLarge},
		{"media type", models.NewUnsupportedMediaType("req_1", "d"), models.ProblemTypeUnsupportedType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"rate limit", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req_1", tt.problem.TraceID)
		})
	}
}

func TestVitalsInput_Validate(t *testing.T) {
	var in models.VitalsInput
	require.NoError(t, json.Unmarshal([]byte(`{"heartRate":0,"oxygen":97}`), &in))

	errs := in.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "movement", errs[0].Field)

	require.NoError(t, json.Unmarshal([]byte(`{"movement":12}`), &in))
	assert.Empty(t, in.Validate())
	v := in.Vitals()
	assert.Equal(t, 0.0, v.HeartRate)
	assert.Equal(t, 97.0, v.Oxygen)
	assert.Equal(t, 12.0, v.Movement)
}

func TestLocationInput_Validate(t *testing.T) {
	var in models.LocationInput
	require.NoError(t, json.Unmarshal([]byte(`{"lat":51.5}`), &in))

	errs := in.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "lng", errs[0].Field)
}

func TestFromProviderStatus(t *testing.T) {
	assert.Equal(t, models.HealthStatusOK, models.FromProviderStatus(resilience.StatusOK))
	assert.Equal(t, models.HealthStatusDegraded, models.FromProviderStatus(resilience.StatusDegraded))
	assert.Equal(t, models.HealthStatusFail, models.FromProviderStatus(resilience.StatusDown))
}
