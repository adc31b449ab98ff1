package alert

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for alert persistence.
type Repository interface {
	Create(ctx context.Context, a *Alert) error

	// Get returns an alert by ID regardless of owner.
	Get(ctx context.Context, alertID string) (*Alert, error)

	// List returns the user's alerts, newest first.
	List(ctx context.Context, userID string, limit int) ([]*Alert, error)

	// Cancel moves a pending alert owned by userID to cancelled.
	// Returns ErrAlertNotFound or ErrAlertNotCancellable.
	Cancel(ctx context.Context, userID, alertID string, at time.Time) (*Alert, error)

	// Complete records a dispatch outcome on a pending alert.
	// Returns ErrAlertNotPending when the alert has left pending.
	Complete(ctx context.Context, alertID string, status Status, out Outcome, at time.Time) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{alerts: make(map[string]*Alert)}
}

func copyAlert(a *Alert) *Alert {
	cpy := *a
	if a.Location != nil {
		loc := *a.Location
		cpy.Location = &loc
	}
	if a.DispatchedAt != nil {
		t := *a.DispatchedAt
		cpy.DispatchedAt = &t
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		cpy.CancelledAt = &t
	}
	return &cpy
}

// Create stores an alert.
func (r *InMemoryRepository) Create(_ context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = copyAlert(a)
	return nil
}

// Get returns an alert by ID.
func (r *InMemoryRepository) Get(_ context.Context, alertID string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

// List returns the user's alerts, newest first.
func (r *InMemoryRepository) List(_ context.Context, userID string, limit int) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cancel moves a pending alert to cancelled.
func (r *InMemoryRepository) Cancel(_ context.Context, userID, alertID string, at time.Time) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok || a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrAlertNotCancellable
	}
	a.Status = StatusCancelled
	a.CancelledAt = &at
	return copyAlert(a), nil
}

// Complete records a dispatch outcome.
func (r *InMemoryRepository) Complete(_ context.Context, alertID string, status Status, out Outcome, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	if a.Status != StatusPending {
		return ErrAlertNotPending
	}
	a.Status = status
	a.RecipientsOK = out.Successful
	a.RecipientsFailed = out.Failed
	a.FailureReason = out.Reason
	if status == StatusDispatched {
		a.DispatchedAt = &at
	}
	return nil
}
