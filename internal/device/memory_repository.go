package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by device ID
	tokens  map[string]string  // kind|token -> device ID
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[string]*Device),
		tokens:  make(map[string]string),
	}
}

func tokenKey(kind Kind, token string) string {
	return string(kind) + "|" + token
}

// Get retrieves a device by user ID and device ID.
func (r *InMemoryRepository) Get(_ context.Context, userID, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok || device.UserID != userID {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

// GetByToken retrieves a device by kind and token.
func (r *InMemoryRepository) GetByToken(_ context.Context, kind Kind, token string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deviceID, ok := r.tokens[tokenKey(kind, token)]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(r.devices[deviceID]), nil
}

// ListByUser retrieves the devices of a user, newest first.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string, opts ListOptions) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Device
	for _, device := range r.devices {
		if device.UserID != userID {
			continue
		}
		if opts.Kind != "" && device.Kind != opts.Kind {
			continue
		}
		items = append(items, copyDevice(device))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

// Upsert creates or updates a device based on its kind and token.
func (r *InMemoryRepository) Upsert(_ context.Context, device *Device) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tokenKey(device.Kind, device.Token)
	if existingID, ok := r.tokens[key]; ok {
		existing := r.devices[existingID]
		existing.UserID = device.UserID
		existing.Platform = device.Platform
		existing.Name = device.Name
		existing.UpdatedAt = device.UpdatedAt

		device.ID = existing.ID
		device.CreatedAt = existing.CreatedAt
		device.LastSeenAt = existing.LastSeenAt
		return false, nil
	}

	r.devices[device.ID] = copyDevice(device)
	r.tokens[key] = device.ID
	return true, nil
}

// Touch records that the device was seen.
func (r *InMemoryRepository) Touch(_ context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	device.LastSeenAt = &at
	return nil
}

// Delete deletes a device.
func (r *InMemoryRepository) Delete(_ context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok || device.UserID != userID {
		return ErrDeviceNotFound
	}

	delete(r.tokens, tokenKey(device.Kind, device.Token))
	delete(r.devices, deviceID)
	return nil
}

// copyDevice creates a deep copy of a device.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}

	deviceCopy := *d
	if d.LastSeenAt != nil {
		val := *d.LastSeenAt
		deviceCopy.LastSeenAt = &val
	}
	return &deviceCopy
}
