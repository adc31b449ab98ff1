package content

import (
	"context"
	"sync"
)

// Repository defines the interface for content persistence.
type Repository interface {
	// GetSection returns ErrNotFound when the section was never written.
	GetSection(ctx context.Context, name string) (*Section, error)
	UpsertSection(ctx context.Context, section *Section) error

	// GetProfileDefaults returns ErrNotFound when no defaults were saved.
	GetProfileDefaults(ctx context.Context) (*ProfileDefaults, error)
	UpsertProfileDefaults(ctx context.Context, defaults *ProfileDefaults) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sections map[string]Section
	defaults *ProfileDefaults
}

// NewInMemoryRepository creates a new in-memory content repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sections: make(map[string]Section)}
}

// GetSection returns a section by name.
func (r *InMemoryRepository) GetSection(_ context.Context, name string) (*Section, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sections[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// UpsertSection creates or replaces a section.
func (r *InMemoryRepository) UpsertSection(_ context.Context, section *Section) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sections[section.Section] = *section
	return nil
}

// GetProfileDefaults returns the saved defaults.
func (r *InMemoryRepository) GetProfileDefaults(_ context.Context) (*ProfileDefaults, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaults == nil {
		return nil, ErrNotFound
	}
	d := *r.defaults
	return &d, nil
}

// UpsertProfileDefaults replaces the defaults.
func (r *InMemoryRepository) UpsertProfileDefaults(_ context.Context, defaults *ProfileDefaults) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := *defaults
	r.defaults = &d
	return nil
}
