package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, featureflags.FlagList{Items: h.service.List(r.Context())})
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !response.Decode(w, r, &req, false) {
		return
	}

	if len(req.Updates) == 0 {
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field: "updates", Message: "at least one update is required", Code: "REQUIRED",
		}})
		return
	}

	userID := GetUserID(r.Context())
	flags, err := h.service.Update(r.Context(), req.Updates, userID)
	if err != nil {
		var verr *featureflags.ValidationError
		if errors.As(err, &verr) {
			fields := make([]models.FieldError, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, models.FieldError(f))
			}
			response.BadRequest(w, r, "validation error", fields)
			return
		}
		h.logger.Error().Err(err).Msg("updating feature flags failed")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("reason", req.Reason).
		Int("count", len(flags)).
		Msg("feature flags updated")

	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
