// Package handler provides HTTP handlers for the Life-Link API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/featureflags"
	"github.com/lifelink/lifelink/internal/provider/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// ReadinessCheck checks one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// MonitorCounter reports the number of live vital-sign monitors.
type MonitorCounter interface {
	Len() int
}

// OpsConfig configures the OpsHandler. Every dependency is optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Checks    []ReadinessCheck
	Registry  *resilience.Registry
	Monitors  MonitorCounter
	Flags     *featureflags.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []ReadinessCheck
	registry  *resilience.Registry
	monitors  MonitorCounter
	flags     *featureflags.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		checks:    cfg.Checks,
		registry:  cfg.Registry,
		monitors:  cfg.Monitors,
		flags:     cfg.Flags,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Any failing dependency makes the instance unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	status := models.HealthStatusOK
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    time.Now().UTC(),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       time.Now().UTC(),
		Subsystems: h.runChecks(ctx),
		Providers:  []*resilience.ProviderHealth{},
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	if h.registry != nil {
		status.Providers = h.registry.Snapshot()
		if status.Status == models.HealthStatusOK {
			status.Status = models.FromProviderStatus(h.registry.Overall())
		}
	}
	if h.monitors != nil {
		status.ActiveMonitors = h.monitors.Len()
	}
	if h.flags != nil {
		status.DisabledFlags = disabledFeatures(ctx, h.flags)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			s.Status = models.HealthStatusFail
			s.Detail = err.Error()
		}
		out = append(out, s)
	}
	return out
}

// disabledFeatures lists the alerting features currently switched off.
func disabledFeatures(ctx context.Context, flags *featureflags.Service) []string {
	var out []string
	if flags.IsAlertsSendingDisabled(ctx) {
		out = append(out, featureflags.FlagDisableAlertsSending)
	}
	if !flags.IsEmailAlertsEnabled(ctx) {
		out = append(out, featureflags.FlagEmailAlerts)
	}
	if !flags.IsPushAlertsEnabled(ctx) {
		out = append(out, featureflags.FlagPushAlerts)
	}
	if !flags.IsCallCenterAlertsEnabled(ctx) {
		out = append(out, featureflags.FlagCallCenterAlerts)
	}
	sort.Strings(out)
	return out
}
