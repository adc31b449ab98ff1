package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/contact"
)

// ContactHandler handles emergency contact endpoints.
type ContactHandler struct {
	service *contact.Service
	logger  zerolog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(service *contact.Service, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{service: service, logger: logger}
}

// ListContacts handles GET /v1/me/contacts.
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.service.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []*contact.Contact{}
	}
	response.JSON(w, r, http.StatusOK, models.List[*contact.Contact]{Items: contacts})
}

// GetContact handles GET /v1/me/contacts/{contactId}.
func (h *ContactHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "contactId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, c)
}

// CreateContact handles POST /v1/me/contacts.
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var input contact.Input
	if !response.Decode(w, r, &input, false) {
		return
	}

	c, err := h.service.Create(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/me/contacts/"+c.ID, c)
}

// UpdateContact handles PUT /v1/me/contacts/{contactId}.
func (h *ContactHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var input contact.Input
	if !response.Decode(w, r, &input, false) {
		return
	}

	c, err := h.service.Update(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "contactId"), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, c)
}

// DeleteContact handles DELETE /v1/me/contacts/{contactId}.
func (h *ContactHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "contactId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *ContactHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *contact.ValidationError
	switch {
	case errors.As(err, &verr):
		out := make([]models.FieldError, len(verr.Errors))
		for i, e := range verr.Errors {
			out[i] = models.FieldError(e)
		}
		response.BadRequest(w, r, "validation error", out)
	case errors.Is(err, contact.ErrContactNotFound):
		response.NotFound(w, r, "contact not found")
	case errors.Is(err, contact.ErrTooManyContacts):
		response.Conflict(w, r, "maximum number of contacts reached")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("contact request failed")
		response.InternalError(w, r, "contact request failed")
	}
}
