package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/device"
)

// DeviceHandler handles device endpoints.
type DeviceHandler struct {
	service *device.Service
	logger  zerolog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(service *device.Service, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{service: service, logger: logger}
}

// deviceView exposes the token suffix so users can tell devices apart.
type deviceView struct {
	*device.Device
	TokenLast4 string `json:"tokenLast4,omitempty"`
}

func newDeviceView(d *device.Device) deviceView {
	return deviceView{Device: d, TokenLast4: d.TokenLast4()}
}

// ListDevices handles GET /v1/me/devices - list registered devices.
// Optional query: kind=PUSH|WEARABLE, limit=1..200.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	kind := device.Kind(strings.ToUpper(r.URL.Query().Get("kind")))
	if kind != "" && !kind.Valid() {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
			Field: "kind", Message: "kind must be PUSH or WEARABLE", Code: "INVALID_ENUM",
		}})
		return
	}
	limit, ok := intQuery(w, r, "limit", 50, 1, 200)
	if !ok {
		return
	}

	devices, err := h.service.List(r.Context(), GetUserID(r.Context()), kind, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]deviceView, len(devices))
	for i, d := range devices {
		items[i] = newDeviceView(d)
	}
	response.JSON(w, r, http.StatusOK, models.List[deviceView]{Items: items})
}

// RegisterDevice handles POST /v1/me/devices - register or update device.
// A new registration answers 201, a re-registration of a known token 200.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input device.RegisterRequest
	if !response.Decode(w, r, &input, false) {
		return
	}

	d, created, err := h.service.Register(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if created {
		response.Created(w, r, "/v1/me/devices/"+d.ID, newDeviceView(d))
		return
	}
	response.JSON(w, r, http.StatusOK, newDeviceView(d))
}

// UnregisterDevice handles DELETE /v1/me/devices/{deviceId} - unregister device.
func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unregister(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "deviceId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *DeviceHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *device.ValidationError
	switch {
	case errors.As(err, &verr):
		out := make([]models.FieldError, len(verr.Fields))
		for i, e := range verr.Fields {
			out[i] = models.FieldError(e)
		}
		response.BadRequest(w, r, "validation error", out)
	case errors.Is(err, device.ErrDeviceNotFound):
		response.NotFound(w, r, "device not found")
	default:
		h.logger.Error().Err(err).Str("user_id", GetUserID(r.Context())).Msg("device request failed")
		response.InternalError(w, r, "device request failed")
	}
}
