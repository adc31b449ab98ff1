package featureflags

import "context"

// Repository stores flag overrides. Flags never stored fall back to their
// defaults in the service.
type Repository interface {
	Get(ctx context.Context, key string) (*Flag, error)

	// List returns every stored flag sorted by key.
	List(ctx context.Context) ([]*Flag, error)

	// Upsert stores all flags or none.
	Upsert(ctx context.Context, flags []*Flag) error
}
