// Package document stores user documents (medical records, insurance
// cards) and serves them through short-lived signed URLs.
package document

import (
	"errors"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxFileSize bounds uploads.
const MaxFileSize = 10 << 20

// DefaultURLTTL is how long signed download URLs stay valid.
const DefaultURLTTL = 3600 * time.Second

// Errors.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDuplicateFile    = errors.New("a document with this name already exists")
	ErrFileTooLarge     = errors.New("file exceeds the maximum size")
	ErrInvalidFileName  = errors.New("invalid file name")
	ErrEmptyFile        = errors.New("file is empty")
	ErrInvalidURL       = errors.New("invalid or expired download link")
)

// Document is a stored file's metadata.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"-"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// SignedURL is a time-limited download link.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CleanFileName validates a client supplied name and strips any directory
// components.
func CleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	switch {
	case name == "" || name == "." || name == "/" || name == "..":
		return "", ErrInvalidFileName
	case len(name) > 255 || !utf8.ValidString(name):
		return "", ErrInvalidFileName
	case strings.ContainsAny(name, "\x00\n\r"):
		return "", ErrInvalidFileName
	}
	return name, nil
}
