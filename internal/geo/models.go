// Package geo stores location fixes and resolves them to addresses for
// emergency notifications.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// UnavailableAddress is used when reverse geocoding fails.
const UnavailableAddress = "Location unavailable"

// DefaultMaxFixAge is how old a fix may be and still be used for an alert.
const DefaultMaxFixAge = 10 * time.Minute

// Errors.
var (
	ErrNoLocation  = errors.New("no location known")
	ErrInvalidFix  = errors.New("invalid location fix")
	ErrGeocodeFail = errors.New("reverse geocoding failed")
)

// Fix is a position reported by a user's device.
type Fix struct {
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy,omitempty"`
	At       time.Time `json:"at"`
}

// Validate checks coordinate ranges.
func (f Fix) Validate() error {
	switch {
	case math.IsNaN(f.Lat) || f.Lat < -90 || f.Lat > 90:
		return fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidFix)
	case math.IsNaN(f.Lng) || f.Lng < -180 || f.Lng > 180:
		return fmt.Errorf("%w: lng must be between -180 and 180", ErrInvalidFix)
	case math.IsNaN(f.Accuracy) || f.Accuracy < 0:
		return fmt.Errorf("%w: accuracy must not be negative", ErrInvalidFix)
	}
	return nil
}

// MapsURL links to the coordinates on Google Maps.
func MapsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%g,%g", lat, lng)
}
