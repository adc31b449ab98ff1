// Package contact manages the emergency contacts alerts are sent to.
package contact

import (
	"errors"
	"strings"
	"time"
)

// MaxContactsPerUser bounds the contact list of one user.
const MaxContactsPerUser = 10

// Field limits.
const (
	MaxNameLength         = 100
	MaxPhoneLength        = 32
	MaxEmailLength        = 254
	MaxRelationshipLength = 50
)

// Errors.
var (
	ErrContactNotFound = errors.New("contact not found")
	ErrTooManyContacts = errors.New("maximum number of contacts reached")
)

// Contact is a person notified when an emergency alert fires.
type Contact struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Input is the body of a create or update request.
type Input struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Relationship = strings.TrimSpace(in.Relationship)
}

// Validate trims the input and checks it.
func (in *Input) Validate() []FieldError {
	in.normalize()

	var errs []FieldError
	switch {
	case in.Name == "":
		errs = append(errs, FieldError{Field: "name", Message: "is required", Code: "REQUIRED"})
	case len(in.Name) > MaxNameLength:
		errs = append(errs, FieldError{Field: "name", Message: "must be at most 100 characters", Code: "TOO_LONG"})
	}
	switch {
	case in.Phone == "":
		errs = append(errs, FieldError{Field: "phone", Message: "is required", Code: "REQUIRED"})
	case len(in.Phone) > MaxPhoneLength:
		errs = append(errs, FieldError{Field: "phone", Message: "must be at most 32 characters", Code: "TOO_LONG"})
	}
	if in.Email != "" {
		if !strings.Contains(in.Email, "@") {
			errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address", Code: "INVALID_FORMAT"})
		} else if len(in.Email) > MaxEmailLength {
			errs = append(errs, FieldError{Field: "email", Message: "is too long", Code: "TOO_LONG"})
		}
	}
	if len(in.Relationship) > MaxRelationshipLength {
		errs = append(errs, FieldError{Field: "relationship", Message: "must be at most 50 characters", Code: "TOO_LONG"})
	}
	return errs
}
