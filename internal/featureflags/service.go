package featureflags

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	Clock        clock.Clock
	CacheTTL     time.Duration // How long a loaded snapshot is reused
	DefaultFlags map[string]*Flag
}

// Service evaluates flags from a cached snapshot of the repository, falling
// back to defaults for flags never stored.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	clock    clock.Clock
	cacheTTL time.Duration
	defaults map[string]*Flag

	mu       sync.RWMutex
	snapshot map[string]*Flag
	loadedAt time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	defaults := cfg.DefaultFlags
	if defaults == nil {
		defaults = DefaultFlags()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		clock:    clk,
		cacheTTL: cacheTTL,
		defaults: defaults,
	}
}

// Get returns the effective flag for key, or nil for unknown keys.
func (s *Service) Get(ctx context.Context, key string) *Flag {
	if s == nil {
		return DefaultFlags()[key]
	}
	if f, ok := s.load(ctx)[key]; ok {
		return f
	}
	return s.defaults[key]
}

// List returns every effective flag sorted by key.
func (s *Service) List(ctx context.Context) []Flag {
	merged := DefaultFlags()
	if s != nil {
		merged = make(map[string]*Flag, len(s.defaults))
		for k, v := range s.defaults {
			merged[k] = v
		}
		for k, v := range s.load(ctx) {
			merged[k] = v
		}
	}

	out := make([]Flag, 0, len(merged))
	for _, f := range merged {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Update validates and stores every update on behalf of updatedBy. Nothing is
// stored when any update is rejected.
func (s *Service) Update(ctx context.Context, updates []FlagUpdate, updatedBy string) ([]*Flag, error) {
	now := s.clock.Now().UTC()
	flags := make([]*Flag, 0, len(updates))
	var verr ValidationError
	for _, u := range updates {
		value, err := Normalize(u.Key, u.Value)
		if err != nil {
			code := "INVALID_VALUE"
			if errors.Is(err, ErrUnknownFlag) {
				code = "UNKNOWN_FLAG"
			}
			verr.Fields = append(verr.Fields, FieldError{Field: u.Key, Message: err.Error(), Code: code})
			continue
		}
		flags = append(flags, &Flag{Key: u.Key, Value: value, UpdatedAt: now, UpdatedBy: updatedBy})
	}
	if len(verr.Fields) > 0 {
		return nil, &verr
	}

	if err := s.repo.Upsert(ctx, flags); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.snapshot != nil {
		for _, f := range flags {
			s.snapshot[f.Key] = f
		}
	}
	s.mu.Unlock()

	return flags, nil
}

// InvalidateCache drops the snapshot so the next read goes to the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.loadedAt = time.Time{}
}

// load returns the stored flags, reloading them once the snapshot is older
// than the cache TTL. A failed reload keeps serving the previous snapshot for
// another TTL.
func (s *Service) load(ctx context.Context) map[string]*Flag {
	now := s.clock.Now()

	s.mu.RLock()
	snapshot, fresh := s.snapshot, s.snapshot != nil && now.Sub(s.loadedAt) < s.cacheTTL
	s.mu.RUnlock()
	if fresh {
		return snapshot
	}

	next := snapshot
	flags, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load feature flags, using cached values")
		if next == nil {
			next = map[string]*Flag{}
		}
	} else {
		next = make(map[string]*Flag, len(flags))
		for _, f := range flags {
			next[f.Key] = f
		}
	}

	s.mu.Lock()
	s.snapshot = next
	s.loadedAt = now
	s.mu.Unlock()
	return next
}

func (s *Service) enabled(ctx context.Context, key string) bool {
	return s.Get(ctx, key).BoolValue(false)
}

// IsAlertsSendingDisabled returns true if emergency dispatch is disabled.
func (s *Service) IsAlertsSendingDisabled(ctx context.Context) bool {
	return s.enabled(ctx, FlagDisableAlertsSending)
}

// IsVitalsSimulationEnabled returns true if the vitals simulator may run.
func (s *Service) IsVitalsSimulationEnabled(ctx context.Context) bool {
	return s.enabled(ctx, FlagEnableVitalsSimulation)
}

// IsEmailAlertsEnabled returns true if alerts are emailed to contacts.
func (s *Service) IsEmailAlertsEnabled(ctx context.Context) bool {
	return s.enabled(ctx, FlagEmailAlerts)
}

// IsPushAlertsEnabled returns true if alerts are pushed to devices.
func (s *Service) IsPushAlertsEnabled(ctx context.Context) bool {
	return s.enabled(ctx, FlagPushAlerts)
}

// IsCallCenterAlertsEnabled returns true if alerts reach the call center.
func (s *Service) IsCallCenterAlertsEnabled(ctx context.Context) bool {
	return s.enabled(ctx, FlagCallCenterAlerts)
}

// MonitorPollInterval returns the configured monitor poll interval, or zero
// when the flag is unset or not positive.
func (s *Service) MonitorPollInterval(ctx context.Context) time.Duration {
	seconds := s.Get(ctx, FlagMonitorPollSeconds).IntValue(0)
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
