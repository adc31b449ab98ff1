package vitals

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for reading persistence.
type Repository interface {
	// Insert stores a reading.
	Insert(ctx context.Context, r *Reading) error

	// Latest returns the newest reading of a user, or ErrNoReadings.
	Latest(ctx context.Context, userID string) (*Reading, error)

	// Since returns the user's readings recorded at or after since, newest first.
	Since(ctx context.Context, userID string, since time.Time, limit int) ([]*Reading, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	readings map[string][]*Reading // userID -> readings in insertion order
}

// NewInMemoryRepository creates a new in-memory vitals repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{readings: make(map[string][]*Reading)}
}

// Insert stores a reading.
func (r *InMemoryRepository) Insert(_ context.Context, reading *Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *reading
	r.readings[reading.UserID] = append(r.readings[reading.UserID], &cpy)
	return nil
}

// Latest returns the newest reading of a user.
func (r *InMemoryRepository) Latest(_ context.Context, userID string) (*Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Reading
	for _, reading := range r.readings[userID] {
		if latest == nil || !reading.RecordedAt.Before(latest.RecordedAt) {
			latest = reading
		}
	}
	if latest == nil {
		return nil, ErrNoReadings
	}
	cpy := *latest
	return &cpy, nil
}

// Since returns the user's readings recorded at or after since, newest first.
func (r *InMemoryRepository) Since(_ context.Context, userID string, since time.Time, limit int) ([]*Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Reading
	for _, reading := range r.readings[userID] {
		if !reading.RecordedAt.Before(since) {
			cpy := *reading
			out = append(out, &cpy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
