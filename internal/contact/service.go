package contact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s %s", e.Errors[0].Field, e.Errors[0].Message)
}

// Service provides contact operations.
type Service struct {
	repo Repository
	max  int
}

// NewService creates a new contact service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, max: MaxContactsPerUser}
}

// List returns the user's contacts.
func (s *Service) List(ctx context.Context, userID string) ([]*Contact, error) {
	contacts, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if contacts == nil {
		contacts = []*Contact{}
	}
	return contacts, nil
}

// Get returns one of the user's contacts.
func (s *Service) Get(ctx context.Context, userID, contactID string) (*Contact, error) {
	return s.repo.Get(ctx, userID, contactID)
}

// Create adds a contact.
func (s *Service) Create(ctx context.Context, userID string, input *Input) (*Contact, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	now := time.Now().UTC()
	c := &Contact{
		ID:           "con_" + uuid.New().String()[:22],
		UserID:       userID,
		Name:         input.Name,
		Phone:        input.Phone,
		Email:        input.Email,
		Relationship: input.Relationship,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, c, s.max); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces a contact's fields.
func (s *Service) Update(ctx context.Context, userID, contactID string, input *Input) (*Contact, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	c, err := s.repo.Get(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	c.Name = input.Name
	c.Phone = input.Phone
	c.Email = input.Email
	c.Relationship = input.Relationship
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, userID, contactID string) error {
	return s.repo.Delete(ctx, userID, contactID)
}
