package featureflags

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository keeps flags in a map. Used by tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag

	// Err, when set, fails every call.
	Err error
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{flags: make(map[string]Flag)}
}

func (r *InMemoryRepository) Get(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}

	f, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

func (r *InMemoryRepository) List(_ context.Context) ([]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}

	out := make([]*Flag, 0, len(r.flags))
	for _, f := range r.flags {
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *InMemoryRepository) Upsert(_ context.Context, flags []*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	for _, f := range flags {
		r.flags[f.Key] = *f
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
