package contact

import "context"

// Repository defines the interface for contact persistence.
// Every operation is scoped to the owning user.
type Repository interface {
	// List returns the user's contacts, oldest first.
	List(ctx context.Context, userID string) ([]*Contact, error)

	// Get returns ErrContactNotFound if the contact doesn't exist or belongs to another user.
	Get(ctx context.Context, userID, contactID string) (*Contact, error)

	// Create stores a contact unless the user already has max contacts,
	// in which case it returns ErrTooManyContacts.
	Create(ctx context.Context, contact *Contact, max int) error

	// Update replaces the editable fields of a contact.
	Update(ctx context.Context, contact *Contact) error

	// Delete removes a contact.
	Delete(ctx context.Context, userID, contactID string) error
}
