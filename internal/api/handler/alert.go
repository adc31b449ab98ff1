package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
)

// AlertHandler handles emergency alert endpoints.
type AlertHandler struct {
	service *alert.Service
	logger  zerolog.Logger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(service *alert.Service, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{service: service, logger: logger}
}

// ListAlerts handles GET /v1/me/alerts?limit=N - most recent first.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit", 50, 1, 100)
	if !ok {
		return
	}

	alerts, err := h.service.List(r.Context(), GetUserID(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.List[*alert.Alert]{Items: alerts})
}

// GetAlert handles GET /v1/me/alerts/{alertId}.
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "alertId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}

// CancelAlert handles POST /v1/me/alerts/{alertId}/cancel - withdraw an
// alert that has not been dispatched yet.
func (h *AlertHandler) CancelAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Cancel(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "alertId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}

func (h *AlertHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, alert.ErrAlertNotFound):
		response.NotFound(w, r, "alert not found")
	case errors.Is(err, alert.ErrAlertNotCancellable):
		response.Conflict(w, r, "alert can no longer be cancelled")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("alert request failed")
		response.InternalError(w, r, "alert request failed")
	}
}
