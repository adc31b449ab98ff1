package models

import (
	"time"

	"github.com/lifelink/lifelink/internal/provider/resilience"
)

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// FromProviderStatus maps a provider registry status onto a health status.
func FromProviderStatus(s resilience.Status) HealthStatus {
	switch s {
	case resilience.StatusOK:
		return HealthStatusOK
	case resilience.StatusDegraded:
		return HealthStatusDegraded
	default:
		return HealthStatusFail
	}
}

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    time.Time              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status         HealthStatus                 `json:"status"`
	Time           time.Time                    `json:"time"`
	Subsystems     []SubsystemStatus            `json:"subsystems"`
	Providers      []*resilience.ProviderHealth `json:"providers"`
	ActiveMonitors int                          `json:"activeMonitors"`
	DisabledFlags  []string                     `json:"disabledFlags,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}
