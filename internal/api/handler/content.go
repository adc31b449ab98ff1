package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/content"
)

// ContentHandler serves the About and Help pages and their admin editing.
type ContentHandler struct {
	service *content.Service
	logger  zerolog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(service *content.Service, logger zerolog.Logger) *ContentHandler {
	return &ContentHandler{service: service, logger: logger}
}

// GetSection handles GET /v1/content/{section}.
func (h *ContentHandler) GetSection(w http.ResponseWriter, r *http.Request) {
	section, err := h.service.GetSection(r.Context(), chi.URLParam(r, "section"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, section)
}

// UpdateSection handles PUT /v1/admin/content/{section}.
func (h *ContentHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	var input models.ContentInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	section, err := h.service.UpdateSection(r.Context(), chi.URLParam(r, "section"), input.Content, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, section)
}

// GetProfileDefaults handles GET /v1/admin/profile-defaults.
func (h *ContentHandler) GetProfileDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := h.service.GetProfileDefaults(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, defaults)
}

// UpdateProfileDefaults handles PUT /v1/admin/profile-defaults.
func (h *ContentHandler) UpdateProfileDefaults(w http.ResponseWriter, r *http.Request) {
	var input content.ProfileDefaults
	if !response.Decode(w, r, &input, false) {
		return
	}

	defaults, err := h.service.UpdateProfileDefaults(r.Context(), input, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, defaults)
}

func (h *ContentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, content.ErrUnknownSection):
		response.NotFound(w, r, "unknown content section")
	case errors.Is(err, content.ErrContentTooLarge):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field: "content", Message: "content is too long", Code: "TOO_LONG",
		}})
	default:
		h.logger.Error().Err(err).Msg("content request failed")
		response.InternalError(w, r, "content request failed")
	}
}
