package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/auth"
	"github.com/lifelink/lifelink/internal/document"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/user"
)

// MonitorRemover drops a user's live monitor and its persisted state.
type MonitorRemover interface {
	Remove(ctx context.Context, userID string) error
}

// MeHandler handles user account endpoints.
type MeHandler struct {
	auth      *auth.Service
	users     *user.Service
	documents *document.Service
	monitors  MonitorRemover
	logger    zerolog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(authService *auth.Service, users *user.Service, documents *document.Service, monitors MonitorRemover, logger zerolog.Logger) *MeHandler {
	return &MeHandler{
		auth:      authService,
		users:     users,
		documents: documents,
		monitors:  monitors,
		logger:    logger,
	}
}

// GetMe handles GET /v1/me - get current user account summary.
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	account, err := h.auth.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(w, r, "account not found")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("loading account failed")
		response.InternalError(w, r, "failed to load account")
		return
	}

	isAdmin, err := h.users.IsAdmin(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("admin lookup failed")
	}

	response.JSON(w, r, http.StatusOK, models.Me{
		UserID:      account.ID,
		Email:       account.Email,
		IsAdmin:     isAdmin,
		CreatedAt:   account.CreatedAt,
		LastLoginAt: account.LastLoginAt,
	})
}

// DeleteMe handles DELETE /v1/me - delete the account and everything it owns.
// Stored documents go first so no blob outlives its metadata.
func (h *MeHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	log := h.logger.With().Str("user_id", userID).Logger()

	docs, err := h.documents.List(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("listing documents for deletion failed")
		response.InternalError(w, r, "failed to delete account")
		return
	}
	for _, d := range docs {
		if err := h.documents.Delete(ctx, userID, d.ID); err != nil && !errors.Is(err, document.ErrDocumentNotFound) {
			log.Error().Err(err).Str("document_id", d.ID).Msg("deleting document failed")
			response.InternalError(w, r, "failed to delete account")
			return
		}
	}

	if err := h.monitors.Remove(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("removing monitor failed")
	}

	if err := h.auth.DeleteAccount(ctx, userID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		log.Error().Err(err).Msg("deleting account failed")
		response.InternalError(w, r, "failed to delete account")
		return
	}

	log.Info().Int("documents", len(docs)).Msg("account deleted")
	response.NoContent(w, r)
}

// GetProfile handles GET /v1/me/profile.
func (h *MeHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeUserError(w, r, err, "failed to load profile")
		return
	}
	response.JSON(w, r, http.StatusOK, profile)
}

// UpdateProfile handles PUT /v1/me/profile. Omitted fields are unchanged.
func (h *MeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input user.ProfileInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	profile, err := h.users.UpdateProfile(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		h.writeUserError(w, r, err, "failed to update profile")
		return
	}
	response.JSON(w, r, http.StatusOK, profile)
}

// GetSettings handles GET /v1/me/settings.
func (h *MeHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.users.GetSettings(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeUserError(w, r, err, "failed to load settings")
		return
	}
	response.JSON(w, r, http.StatusOK, settings)
}

// UpdateSettings handles PUT /v1/me/settings.
func (h *MeHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input user.SettingsInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	settings, err := h.users.UpdateSettings(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		h.writeUserError(w, r, err, "failed to update settings")
		return
	}
	response.JSON(w, r, http.StatusOK, settings)
}

// GetThresholds handles GET /v1/me/thresholds.
func (h *MeHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := h.users.GetThresholds(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.writeUserError(w, r, err, "failed to load thresholds")
		return
	}
	response.JSON(w, r, http.StatusOK, t)
}

// UpdateThresholds handles PUT /v1/me/thresholds. A live monitor picks up
// the new values through the user service's change hook.
func (h *MeHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var input monitor.Thresholds
	if !response.Decode(w, r, &input, false) {
		return
	}

	t, err := h.users.UpdateThresholds(r.Context(), GetUserID(r.Context()), input)
	if err != nil {
		if errors.Is(err, monitor.ErrInvalidThresholds) {
			response.BadRequest(w, r, "thresholds must be finite numbers", nil)
			return
		}
		h.writeUserError(w, r, err, "failed to update thresholds")
		return
	}
	response.JSON(w, r, http.StatusOK, t)
}

func (h *MeHandler) writeUserError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	var verr *user.ValidationError
	switch {
	case errors.As(err, &verr):
		out := make([]models.FieldError, len(verr.Fields))
		for i, e := range verr.Fields {
			out[i] = models.FieldError(e)
		}
		response.BadRequest(w, r, "validation error", out)
	case errors.Is(err, user.ErrUsernameTaken):
		response.Conflict(w, r, "Username already taken")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, r, "profile not found")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg(detail)
		response.InternalError(w, r, detail)
	}
}
