package device

import (
	"context"
	"time"
)

// Repository defines the interface for device persistence.
type Repository interface {
	// Get retrieves a device by user ID and device ID.
	Get(ctx context.Context, userID, deviceID string) (*Device, error)

	// GetByToken retrieves a device by kind and token.
	GetByToken(ctx context.Context, kind Kind, token string) (*Device, error)

	// ListByUser retrieves the devices of a user, newest first.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Device, error)

	// Upsert creates a device or, when the kind and token are already
	// registered, moves it to the given user. The stored ID is written back
	// to device. Returns true if a new device was created.
	Upsert(ctx context.Context, device *Device) (created bool, err error)

	// Touch records that the device was seen.
	Touch(ctx context.Context, deviceID string, at time.Time) error

	// Delete deletes a device.
	Delete(ctx context.Context, userID, deviceID string) error
}
