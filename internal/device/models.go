// Package device registers push-notification targets and vitals wearables.
package device

import (
	"errors"
	"strings"
	"time"
)

// Repository errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Kind separates push targets from wearables.
type Kind string

const (
	// KindPush is an FCM or APNS registration token.
	KindPush Kind = "PUSH"
	// KindWearable is a sensor that publishes vitals over MQTT.
	KindWearable Kind = "WEARABLE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPush || k == KindWearable
}

// Platform identifies a push service.
type Platform string

const (
	PlatformFCM  Platform = "FCM"
	PlatformAPNS Platform = "APNS"
)

// Device is a registered push target or wearable.
type Device struct {
	ID         string     `json:"id"`
	UserID     string     `json:"-"`
	Kind       Kind       `json:"kind"`
	Token      string     `json:"-"`
	Platform   Platform   `json:"platform,omitempty"`
	Name       string     `json:"name,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// TokenLast4 returns the last 4 characters of the token for display purposes.
func (d *Device) TokenLast4() string {
	if len(d.Token) < 4 {
		return d.Token
	}
	return d.Token[len(d.Token)-4:]
}

// RegisterRequest is the body of a device registration.
type RegisterRequest struct {
	Kind     Kind     `json:"kind"`
	Token    string   `json:"token"`
	Platform Platform `json:"platform,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validate validates the registration.
func (r *RegisterRequest) Validate() []FieldError {
	var errs []FieldError

	r.Token = strings.TrimSpace(r.Token)
	if r.Kind == "" {
		r.Kind = KindPush
	}

	if !r.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Message: "kind must be PUSH or WEARABLE", Code: "INVALID_ENUM"})
	}
	if r.Token == "" {
		errs = append(errs, FieldError{Field: "token", Message: "token is required", Code: "REQUIRED"})
	} else if len(r.Token) > 4096 {
		errs = append(errs, FieldError{Field: "token", Message: "token is too long", Code: "TOO_LONG"})
	}
	if r.Kind == KindPush {
		switch r.Platform {
		case "":
			r.Platform = PlatformFCM
		case PlatformFCM, PlatformAPNS:
		default:
			errs = append(errs, FieldError{Field: "platform", Message: "platform must be FCM or APNS", Code: "INVALID_ENUM"})
		}
	}

	return errs
}

// ListOptions contains options for listing devices.
type ListOptions struct {
	Kind  Kind
	Limit int
}
