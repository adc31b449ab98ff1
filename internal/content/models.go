// Package content stores the admin-edited About and Help pages and the
// default text new profiles start with.
package content

import (
	"errors"
	"time"
)

// Section names.
const (
	SectionAbout = "about"
	SectionHelp  = "help"
)

// MaxContentLength bounds a section body.
const MaxContentLength = 64 << 10

// Errors.
var (
	ErrUnknownSection  = errors.New("unknown content section")
	ErrContentTooLarge = errors.New("content exceeds maximum length")
	ErrNotFound        = errors.New("content not found")
)

// KnownSection reports whether name is an editable section.
func KnownSection(name string) bool {
	return name == SectionAbout || name == SectionHelp
}

// Section is one page of shared content.
type Section struct {
	Section   string    `json:"section"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// ProfileDefaults is the text new profiles start with.
type ProfileDefaults struct {
	MedicalHistoryDefault string    `json:"medicalHistoryDefault"`
	MedicationsDefault    string    `json:"medicationsDefault"`
	SpecialNotesDefault   string    `json:"specialNotesDefault"`
	UpdatedAt             time.Time `json:"updatedAt"`
	UpdatedBy             string    `json:"updatedBy,omitempty"`
}
