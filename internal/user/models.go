// Package user manages profiles, app settings and alert thresholds.
//
// A profile, a settings row and a thresholds row are created for every
// account at registration. Profiles hold PII (name, address, medical notes)
// and are only ever returned to their owner. The isAdmin flag is managed
// out of band and is never writable through the profile API.
package user

import (
	"strings"
	"time"

	"github.com/lifelink/lifelink/internal/monitor"
)

// MaxUsernameLength bounds usernames.
const MaxUsernameLength = 32

// Profile represents a user's personal and medical details.
type Profile struct {
	UserID         string    `json:"userId"`
	FullName       string    `json:"fullName"`
	Username       string    `json:"username"`
	Address1       string    `json:"address1"`
	Address2       string    `json:"address2"`
	Address3       string    `json:"address3"`
	Country        string    `json:"country"`
	PostalCode     string    `json:"postalCode"`
	MedicalHistory string    `json:"medicalHistory"`
	Medications    string    `json:"medications"`
	SpecialNotes   string    `json:"specialNotes"`
	IsAdmin        bool      `json:"isAdmin"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Address joins the non-empty address lines.
func (p *Profile) Address() string {
	var parts []string
	for _, s := range []string{p.Address1, p.Address2, p.Address3, p.PostalCode, p.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ProfileInput is a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	FullName       *string `json:"fullName,omitempty"`
	Username       *string `json:"username,omitempty"`
	Address1       *string `json:"address1,omitempty"`
	Address2       *string `json:"address2,omitempty"`
	Address3       *string `json:"address3,omitempty"`
	Country        *string `json:"country,omitempty"`
	PostalCode     *string `json:"postalCode,omitempty"`
	MedicalHistory *string `json:"medicalHistory,omitempty"`
	Medications    *string `json:"medications,omitempty"`
	SpecialNotes   *string `json:"specialNotes,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validate checks the fields being changed.
func (in *ProfileInput) Validate() []FieldError {
	var errs []FieldError
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		switch {
		case len(name) > MaxUsernameLength:
			errs = append(errs, FieldError{Field: "username", Message: "username must be at most 32 characters", Code: "TOO_LONG"})
		case strings.ContainsAny(name, " \t\n@/"):
			errs = append(errs, FieldError{Field: "username", Message: "username contains invalid characters", Code: "INVALID_FORMAT"})
		}
	}
	if in.FullName != nil && len(*in.FullName) > 200 {
		errs = append(errs, FieldError{Field: "fullName", Message: "full name must be at most 200 characters", Code: "TOO_LONG"})
	}
	return errs
}

// apply copies the set fields onto p.
func (in *ProfileInput) apply(p *Profile) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.FullName, in.FullName)
	set(&p.Username, in.Username)
	set(&p.Address1, in.Address1)
	set(&p.Address2, in.Address2)
	set(&p.Address3, in.Address3)
	set(&p.Country, in.Country)
	set(&p.PostalCode, in.PostalCode)
	if in.MedicalHistory != nil {
		p.MedicalHistory = *in.MedicalHistory
	}
	if in.Medications != nil {
		p.Medications = *in.Medications
	}
	if in.SpecialNotes != nil {
		p.SpecialNotes = *in.SpecialNotes
	}
}

// Settings are the user's app preferences.
type Settings struct {
	UserID                  string    `json:"-"`
	NotificationsEnabled    bool      `json:"notificationsEnabled"`
	LocationTrackingEnabled bool      `json:"locationTrackingEnabled"`
	DarkModeEnabled         bool      `json:"darkModeEnabled"`
	EmergencyAlertsEnabled  bool      `json:"emergencyAlertsEnabled"`
	DataSharing             bool      `json:"dataSharing"`
	SimulationEnabled       bool      `json:"simulationEnabled"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// DefaultSettings returns the settings every new account starts with.
func DefaultSettings(userID string) *Settings {
	return &Settings{
		UserID:                  userID,
		NotificationsEnabled:    true,
		LocationTrackingEnabled: true,
		EmergencyAlertsEnabled:  true,
		UpdatedAt:               time.Now().UTC(),
	}
}

// SettingsInput is a partial settings update.
type SettingsInput struct {
	NotificationsEnabled    *bool `json:"notificationsEnabled,omitempty"`
	LocationTrackingEnabled *bool `json:"locationTrackingEnabled,omitempty"`
	DarkModeEnabled         *bool `json:"darkModeEnabled,omitempty"`
	EmergencyAlertsEnabled  *bool `json:"emergencyAlertsEnabled,omitempty"`
	DataSharing             *bool `json:"dataSharing,omitempty"`
	SimulationEnabled       *bool `json:"simulationEnabled,omitempty"`
}

func (in *SettingsInput) apply(s *Settings) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.NotificationsEnabled, in.NotificationsEnabled)
	set(&s.LocationTrackingEnabled, in.LocationTrackingEnabled)
	set(&s.DarkModeEnabled, in.DarkModeEnabled)
	set(&s.EmergencyAlertsEnabled, in.EmergencyAlertsEnabled)
	set(&s.DataSharing, in.DataSharing)
	set(&s.SimulationEnabled, in.SimulationEnabled)
}

// Thresholds pairs a user with their alert thresholds.
type Thresholds struct {
	UserID string `json:"-"`
	monitor.Thresholds
	UpdatedAt time.Time `json:"updatedAt"`
}
