package contact

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
}

// NewInMemoryRepository creates a new in-memory contact repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		contacts: make(map[string]*Contact),
	}
}

// List returns the user's contacts, oldest first.
func (r *InMemoryRepository) List(_ context.Context, userID string) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Contact
	for _, c := range r.contacts {
		if c.UserID == userID {
			cpy := *c
			items = append(items, &cpy)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Get retrieves a contact by user ID and contact ID.
func (r *InMemoryRepository) Get(_ context.Context, userID, contactID string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contacts[contactID]
	if !ok || c.UserID != userID {
		return nil, ErrContactNotFound
	}

	cpy := *c
	return &cpy, nil
}

// Create stores a contact.
func (r *InMemoryRepository) Create(_ context.Context, contact *Contact, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, c := range r.contacts {
		if c.UserID == contact.UserID {
			count++
		}
	}
	if count >= max {
		return ErrTooManyContacts
	}

	cpy := *contact
	r.contacts[contact.ID] = &cpy
	return nil
}

// Update replaces the editable fields of a contact.
func (r *InMemoryRepository) Update(_ context.Context, contact *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.contacts[contact.ID]
	if !ok || existing.UserID != contact.UserID {
		return ErrContactNotFound
	}

	cpy := *contact
	cpy.CreatedAt = existing.CreatedAt
	r.contacts[contact.ID] = &cpy
	return nil
}

// Delete removes a contact.
func (r *InMemoryRepository) Delete(_ context.Context, userID, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[contactID]
	if !ok || c.UserID != userID {
		return ErrContactNotFound
	}

	delete(r.contacts, contactID)
	return nil
}
