package user

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Repository errors.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// Repository defines the interface for profile, settings and threshold persistence.
type Repository interface {
	// GetProfile retrieves a profile by user ID.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// CreateProfile creates the profile of a new user.
	CreateProfile(ctx context.Context, profile *Profile) error

	// UpdateProfile updates an existing profile. Returns ErrUsernameTaken on conflict.
	UpdateProfile(ctx context.Context, profile *Profile) error

	// SetAdmin grants or revokes admin rights.
	SetAdmin(ctx context.Context, userID string, admin bool) error

	// GetSettings retrieves the user's settings.
	GetSettings(ctx context.Context, userID string) (*Settings, error)

	// UpsertSettings creates or replaces the user's settings.
	UpsertSettings(ctx context.Context, settings *Settings) error

	// GetThresholds retrieves the user's alert thresholds.
	GetThresholds(ctx context.Context, userID string) (*Thresholds, error)

	// UpsertThresholds creates or replaces the user's alert thresholds.
	UpsertThresholds(ctx context.Context, thresholds *Thresholds) error

	// ListSimulationUsers returns the IDs of users with simulation enabled.
	ListSimulationUsers(ctx context.Context) ([]string, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Intended for tests and local development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	profiles   map[string]Profile
	settings   map[string]Settings
	thresholds map[string]Thresholds
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles:   make(map[string]Profile),
		settings:   make(map[string]Settings),
		thresholds: make(map[string]Thresholds),
	}
}

// GetProfile retrieves a profile by user ID.
func (r *InMemoryRepository) GetProfile(_ context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &p, nil
}

// CreateProfile creates the profile of a new user.
func (r *InMemoryRepository) CreateProfile(_ context.Context, profile *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.usernameTaken(profile.UserID, profile.Username) {
		return ErrUsernameTaken
	}
	r.profiles[profile.UserID] = *profile
	return nil
}

// UpdateProfile updates an existing profile.
func (r *InMemoryRepository) UpdateProfile(_ context.Context, profile *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.profiles[profile.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if r.usernameTaken(profile.UserID, profile.Username) {
		return ErrUsernameTaken
	}
	updated := *profile
	updated.IsAdmin = existing.IsAdmin
	r.profiles[profile.UserID] = updated
	return nil
}

// usernameTaken reports whether another user holds the name. Callers hold mu.
func (r *InMemoryRepository) usernameTaken(userID, username string) bool {
	if username == "" {
		return false
	}
	for id, p := range r.profiles {
		if id != userID && strings.EqualFold(p.Username, username) {
			return true
		}
	}
	return false
}

// SetAdmin grants or revokes admin rights.
func (r *InMemoryRepository) SetAdmin(_ context.Context, userID string, admin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return ErrUserNotFound
	}
	p.IsAdmin = admin
	r.profiles[userID] = p
	return nil
}

// GetSettings retrieves the user's settings.
func (r *InMemoryRepository) GetSettings(_ context.Context, userID string) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &s, nil
}

// UpsertSettings creates or replaces the user's settings.
func (r *InMemoryRepository) UpsertSettings(_ context.Context, settings *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[settings.UserID] = *settings
	return nil
}

// GetThresholds retrieves the user's alert thresholds.
func (r *InMemoryRepository) GetThresholds(_ context.Context, userID string) (*Thresholds, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.thresholds[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &t, nil
}

// UpsertThresholds creates or replaces the user's alert thresholds.
func (r *InMemoryRepository) UpsertThresholds(_ context.Context, thresholds *Thresholds) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.thresholds[thresholds.UserID] = *thresholds
	return nil
}

// ListSimulationUsers returns the IDs of users with simulation enabled.
func (r *InMemoryRepository) ListSimulationUsers(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.settings {
		if s.SimulationEnabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
