package geo

import (
	"context"
	"errors"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/monitor"
)

// Geocoder turns coordinates into a short address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// LocationSink receives every reported fix. The monitor manager implements it.
type LocationSink interface {
	ReportLocation(ctx context.Context, userID string, loc monitor.Location) error
}

// ServiceConfig holds configuration for the location service.
type ServiceConfig struct {
	Store    Store
	Geocoder Geocoder
	Sink     LocationSink // optional
	Clock    clock.Clock
	Logger   zerolog.Logger
	MaxAge   time.Duration
}

// Service records fixes and locates users for emergency notifications.
// It implements monitor.Locator.
type Service struct {
	store    Store
	geocoder Geocoder
	sink     LocationSink
	clock    clock.Clock
	logger   zerolog.Logger
	maxAge   time.Duration
}

// NewService creates a location service.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxFixAge
	}
	return &Service{
		store:    cfg.Store,
		geocoder: cfg.Geocoder,
		sink:     cfg.Sink,
		clock:    clk,
		logger:   cfg.Logger,
		maxAge:   maxAge,
	}
}

// RecordFix stores a fix. A zero At is stamped with the current time.
func (s *Service) RecordFix(ctx context.Context, userID string, fix Fix) (*Fix, error) {
	if err := fix.Validate(); err != nil {
		return nil, err
	}
	if fix.At.IsZero() {
		fix.At = s.clock.Now().UTC()
	}

	if err := s.store.SaveFix(ctx, userID, fix); err != nil {
		return nil, err
	}

	if s.sink != nil {
		loc := monitor.Location{Lat: fix.Lat, Lng: fix.Lng}
		if err := s.sink.ReportLocation(ctx, userID, loc); err != nil {
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to forward location to monitor")
		}
	}

	return &fix, nil
}

// Locate resolves the user's current location.
//
// A fix younger than MaxAge is reverse geocoded and remembered as the last
// known location. A failed lookup keeps the coordinates with
// UnavailableAddress. Without a fresh fix the last known location is
// returned, and ErrNoLocation when there is none.
func (s *Service) Locate(ctx context.Context, userID string) (*monitor.Location, error) {
	fix, err := s.store.LatestFix(ctx, userID)
	if err != nil && !errors.Is(err, ErrNoLocation) {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read latest fix")
	}

	if fix != nil && s.clock.Since(fix.At) <= s.maxAge {
		loc := &monitor.Location{Lat: fix.Lat, Lng: fix.Lng, Address: UnavailableAddress}
		if s.geocoder != nil {
			address, gerr := s.geocoder.ReverseGeocode(ctx, fix.Lat, fix.Lng)
			if gerr != nil {
				s.logger.Warn().Err(gerr).Str("user_id", userID).Msg("reverse geocoding failed")
			} else {
				loc.Address = address
			}
		}

		if err := s.store.SaveLastKnown(ctx, userID, *loc); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to save last known location")
		}
		return loc, nil
	}

	return s.store.LastKnown(ctx, userID)
}

// LatestFix returns the user's latest stored fix.
func (s *Service) LatestFix(ctx context.Context, userID string) (*Fix, error) {
	return s.store.LatestFix(ctx, userID)
}
