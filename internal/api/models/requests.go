package models

import (
	"time"

	"github.com/lifelink/lifelink/internal/monitor"
)

// VitalsInput is the body of POST /v1/me/vitals. Pointer fields let the
// handler tell a zero reading from a missing one.
type VitalsInput struct {
	HeartRate *float64 `json:"heartRate"`
	Oxygen    *float64 `json:"oxygen"`
	Movement  *float64 `json:"movement"`
}

// Validate reports missing fields.
func (in *VitalsInput) Validate() []FieldError {
	var errs []FieldError
	if in.HeartRate == nil {
		errs = append(errs, FieldError{Field: "heartRate", Message: "heartRate is required", Code: "REQUIRED"})
	}
	if in.Oxygen == nil {
		errs = append(errs, FieldError{Field: "oxygen", Message: "oxygen is required", Code: "REQUIRED"})
	}
	if in.Movement == nil {
		errs = append(errs, FieldError{Field: "movement", Message: "movement is required", Code: "REQUIRED"})
	}
	return errs
}

// Vitals converts a validated input.
func (in *VitalsInput) Vitals() monitor.Vitals {
	return monitor.Vitals{HeartRate: *in.HeartRate, Oxygen: *in.Oxygen, Movement: *in.Movement}
}

// SimulateInput is the body of POST /v1/me/vitals/simulate.
type SimulateInput struct {
	Critical bool `json:"critical"`
}

// LocationInput is the body of POST /v1/me/location.
type LocationInput struct {
	Lat      *float64   `json:"lat"`
	Lng      *float64   `json:"lng"`
	Accuracy float64    `json:"accuracy,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

// Validate reports missing coordinates.
func (in *LocationInput) Validate() []FieldError {
	var errs []FieldError
	if in.Lat == nil {
		errs = append(errs, FieldError{Field: "lat", Message: "lat is required", Code: "REQUIRED"})
	}
	if in.Lng == nil {
		errs = append(errs, FieldError{Field: "lng", Message: "lng is required", Code: "REQUIRED"})
	}
	return errs
}

// MonitorStartInput is the optional body of POST /v1/me/monitor/start.
// Without thresholds the stored ones are used.
type MonitorStartInput struct {
	Thresholds *monitor.Thresholds `json:"thresholds,omitempty"`
}

// MonitorResumeInput is the optional body of POST /v1/me/monitor/resume.
// A missing pauseSeconds selects the server default; 0 resumes immediately.
type MonitorResumeInput struct {
	PauseSeconds *int `json:"pauseSeconds,omitempty"`
}

// ContentInput is the body of PUT /v1/admin/content/{section}.
type ContentInput struct {
	Content string `json:"content"`
}

// Me is the account summary returned by GET /v1/me.
type Me struct {
	UserID      string     `json:"userId"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"isAdmin"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// List wraps collection responses.
type List[T any] struct {
	Items []T `json:"items"`
}
