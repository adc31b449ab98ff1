package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/vitals"
)

// VitalsHandler handles vital-sign endpoints.
type VitalsHandler struct {
	service   *vitals.Service
	simulator *vitals.Simulator
	logger    zerolog.Logger
}

// NewVitalsHandler creates a new VitalsHandler. simulator may be nil, in
// which case the simulate endpoint answers 503.
func NewVitalsHandler(service *vitals.Service, simulator *vitals.Simulator, logger zerolog.Logger) *VitalsHandler {
	return &VitalsHandler{service: service, simulator: simulator, logger: logger}
}

// RecordVitals handles POST /v1/me/vitals - submit a manual reading.
func (h *VitalsHandler) RecordVitals(w http.ResponseWriter, r *http.Request) {
	var input models.VitalsInput
	if !response.Decode(w, r, &input, false) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation error", errs)
		return
	}

	reading, err := h.service.Record(r.Context(), GetUserID(r.Context()), input.Vitals(), vitals.SourceManual)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, reading)
}

// LatestVitals handles GET /v1/me/vitals/latest.
func (h *VitalsHandler) LatestVitals(w http.ResponseWriter, r *http.Request) {
	reading, err := h.service.Latest(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, reading)
}

// VitalsHistory handles GET /v1/me/vitals/history?days=N.
func (h *VitalsHandler) VitalsHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(w, r, "days", vitals.DefaultHistoryDays, 1, vitals.MaxHistoryDays)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), GetUserID(r.Context()), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, history)
}

// SimulateVitals handles POST /v1/me/vitals/simulate - record one synthetic
// reading, critical when asked. The body is optional.
func (h *VitalsHandler) SimulateVitals(w http.ResponseWriter, r *http.Request) {
	if h.simulator == nil {
		response.ServiceUnavailable(w, r, "vitals simulation is not available")
		return
	}

	var input models.SimulateInput
	if !response.Decode(w, r, &input, true) {
		return
	}

	reading, err := h.simulator.SimulateOnce(r.Context(), GetUserID(r.Context()), input.Critical)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, reading)
}

func (h *VitalsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rangeErr *vitals.RangeError
	switch {
	case errors.As(err, &rangeErr):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field: rangeErr.Field, Message: rangeErr.Error(), Code: "OUT_OF_RANGE",
		}})
	case errors.Is(err, vitals.ErrInvalidReading):
		response.BadRequest(w, r, "invalid vitals reading", nil)
	case errors.Is(err, vitals.ErrNoReadings):
		response.NotFound(w, r, "no vitals recorded yet")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("vitals request failed")
		response.InternalError(w, r, "vitals request failed")
	}
}
