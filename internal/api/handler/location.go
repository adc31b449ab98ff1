package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/geo"
)

// LocationHandler handles location endpoints.
type LocationHandler struct {
	service *geo.Service
	logger  zerolog.Logger
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(service *geo.Service, logger zerolog.Logger) *LocationHandler {
	return &LocationHandler{service: service, logger: logger}
}

// RecordLocation handles POST /v1/me/location - store a device fix.
func (h *LocationHandler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	var input models.LocationInput
	if !response.Decode(w, r, &input, false) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation error", errs)
		return
	}

	fix := geo.Fix{Lat: *input.Lat, Lng: *input.Lng, Accuracy: input.Accuracy}
	if input.At != nil {
		fix.At = input.At.UTC()
	}

	stored, err := h.service.RecordFix(r.Context(), GetUserID(r.Context()), fix)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, stored)
}

// GetLocation handles GET /v1/me/location - the resolved current location.
func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.Locate(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, loc)
}

func (h *LocationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidFix):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, geo.ErrNoLocation):
		response.NotFound(w, r, "no location known")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("location request failed")
		response.InternalError(w, r, "location request failed")
	}
}
