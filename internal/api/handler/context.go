package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lifelink/lifelink/internal/api/middleware"
	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// intQuery parses an optional integer query parameter. It writes a 400 and
// returns false when the value is present but malformed or out of range.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
			Field:   name,
			Message: name + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max),
			Code:    "OUT_OF_RANGE",
		}})
		return 0, false
	}
	return n, true
}
