package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/user"
)

// maxResumePause bounds a client requested pause.
const maxResumePause = time.Hour

// MonitorHandler exposes the user's vital-sign monitor.
type MonitorHandler struct {
	manager *monitor.Manager
	users   *user.Service
	logger  zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(manager *monitor.Manager, users *user.Service, logger zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{manager: manager, users: users, logger: logger}
}

// GetMonitor handles GET /v1/me/monitor - current phase and countdown.
func (h *MonitorHandler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.State(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

// StartMonitor handles POST /v1/me/monitor/start. Without thresholds in the
// body the user's stored thresholds are used.
func (h *MonitorHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	var input models.MonitorStartInput
	if !response.Decode(w, r, &input, true) {
		return
	}

	ctx := r.Context()
	userID := GetUserID(ctx)

	var thresholds monitor.Thresholds
	if input.Thresholds != nil {
		thresholds = *input.Thresholds
	} else {
		stored, err := h.users.GetThresholds(ctx, userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		thresholds = stored
	}

	if err := h.manager.Start(ctx, userID, thresholds); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeState(w, r)
}

// CancelMonitor handles POST /v1/me/monitor/cancel - the user is fine.
// Only a running countdown can be cancelled.
func (h *MonitorHandler) CancelMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Cancel(GetUserID(r.Context())) {
		response.Conflict(w, r, "no emergency countdown is running")
		return
	}
	h.writeState(w, r)
}

// ResumeMonitor handles POST /v1/me/monitor/resume - back to monitoring
// after an alert or a cancellation.
func (h *MonitorHandler) ResumeMonitor(w http.ResponseWriter, r *http.Request) {
	var input models.MonitorResumeInput
	if !response.Decode(w, r, &input, true) {
		return
	}

	pause := monitor.UseDefaultPause
	if input.PauseSeconds != nil {
		pause = time.Duration(*input.PauseSeconds) * time.Second
		if pause < 0 || pause > maxResumePause {
			response.BadRequest(w, r, "validation error", []models.FieldError{{
				Field: "pauseSeconds", Message: "pauseSeconds must be between 0 and 3600", Code: "OUT_OF_RANGE",
			}})
			return
		}
	}

	resumed, err := h.manager.Resume(r.Context(), GetUserID(r.Context()), pause)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !resumed {
		response.Conflict(w, r, "monitor cannot resume while a countdown is running")
		return
	}
	h.writeState(w, r)
}

func (h *MonitorHandler) writeState(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.State(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

func (h *MonitorHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, monitor.ErrInvalidThresholds):
		response.BadRequest(w, r, "thresholds must be finite numbers", nil)
	case errors.Is(err, monitor.ErrStopped):
		response.ServiceUnavailable(w, r, "monitoring is shutting down")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("monitor request failed")
		response.InternalError(w, r, "monitor request failed")
	}
}
