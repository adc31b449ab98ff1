package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles POST /v1/auth/register - create an account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !response.Decode(w, r, &creds, false) {
		return
	}

	tokens, err := h.authService.Register(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			response.Conflict(w, r, "an account with this email already exists")
			return
		}
		if h.writeValidation(w, r, err) {
			return
		}
		h.logger.Error().Err(err).Msg("registration failed")
		response.InternalError(w, r, "registration failed")
		return
	}

	response.JSON(w, r, http.StatusCreated, tokens)
}

// Login handles POST /v1/auth/login - exchange credentials for tokens.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !response.Decode(w, r, &creds, false) {
		return
	}

	tokens, err := h.authService.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Unauthorized(w, r, "invalid email or password")
			return
		}
		if h.writeValidation(w, r, err) {
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		response.InternalError(w, r, "login failed")
		return
	}

	response.JSON(w, r, http.StatusOK, tokens)
}

// RefreshToken handles POST /v1/auth/refresh - refresh access token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRefreshRequest(w, r)
	if !ok {
		return
	}

	tokens, err := h.authService.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			response.Unauthorized(w, r, "invalid refresh token")
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			response.Unauthorized(w, r, "refresh token has expired")
		case errors.Is(err, auth.ErrUserNotFound):
			response.Unauthorized(w, r, "account no longer exists")
		default:
			h.logger.Error().Err(err).Msg("token refresh failed")
			response.InternalError(w, r, "token refresh failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, tokens)
}

// Logout handles POST /v1/auth/logout - revoke a refresh token.
// Unknown tokens are ignored so logout is idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRefreshRequest(w, r)
	if !ok {
		return
	}

	err := h.authService.RevokeRefreshToken(r.Context(), req.RefreshToken)
	if err != nil && !errors.Is(err, auth.ErrInvalidRefreshToken) {
		h.logger.Error().Err(err).Msg("logout failed")
		response.InternalError(w, r, "logout failed")
		return
	}

	response.NoContent(w, r)
}

// LogoutAll handles POST /v1/me/logout-all - revoke every refresh token of
// the authenticated user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if err := h.authService.RevokeAllTokens(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("revoking tokens failed")
		response.InternalError(w, r, "logout failed")
		return
	}
	response.NoContent(w, r)
}

func decodeRefreshRequest(w http.ResponseWriter, r *http.Request) (*auth.RefreshTokenRequest, bool) {
	var req auth.RefreshTokenRequest
	if !response.Decode(w, r, &req, false) {
		return nil, false
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation error", authFieldErrors(errs))
		return nil, false
	}
	return &req, true
}

func (h *AuthHandler) writeValidation(w http.ResponseWriter, r *http.Request, err error) bool {
	var verr *auth.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	response.BadRequest(w, r, "validation error", authFieldErrors(verr.Fields))
	return true
}

func authFieldErrors(errs []auth.FieldError) []models.FieldError {
	out := make([]models.FieldError, len(errs))
	for i, e := range errs {
		out[i] = models.FieldError(e)
	}
	return out
}
