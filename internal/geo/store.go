package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lifelink/lifelink/internal/monitor"
)

// Store keeps each user's latest fix and last resolved location.
type Store interface {
	SaveFix(ctx context.Context, userID string, fix Fix) error
	LatestFix(ctx context.Context, userID string) (*Fix, error)
	SaveLastKnown(ctx context.Context, userID string, loc monitor.Location) error
	LastKnown(ctx context.Context, userID string) (*monitor.Location, error)
}

const (
	fixKeyPrefix       = "lifelink:geo:fix:"
	lastKnownKeyPrefix = "lifelink:geo:last:"

	defaultFixTTL       = 24 * time.Hour
	defaultLastKnownTTL = 30 * 24 * time.Hour
)

// RedisLocationStore stores locations as JSON strings.
type RedisLocationStore struct {
	client *redis.Client
}

// NewRedisLocationStore creates a store.
func NewRedisLocationStore(client *redis.Client) *RedisLocationStore {
	return &RedisLocationStore{client: client}
}

func (s *RedisLocationStore) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	return nil
}

func (s *RedisLocationStore) get(ctx context.Context, key string, v any) error {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoLocation
		}
		return fmt.Errorf("failed to load location: %w", err)
	}
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("failed to unmarshal location: %w", err)
	}
	return nil
}

// SaveFix stores the user's latest fix.
func (s *RedisLocationStore) SaveFix(ctx context.Context, userID string, fix Fix) error {
	return s.set(ctx, fixKeyPrefix+userID, fix, defaultFixTTL)
}

// LatestFix returns the user's latest fix or ErrNoLocation.
func (s *RedisLocationStore) LatestFix(ctx context.Context, userID string) (*Fix, error) {
	var fix Fix
	if err := s.get(ctx, fixKeyPrefix+userID, &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// SaveLastKnown stores the last location resolved for an alert.
func (s *RedisLocationStore) SaveLastKnown(ctx context.Context, userID string, loc monitor.Location) error {
	return s.set(ctx, lastKnownKeyPrefix+userID, loc, defaultLastKnownTTL)
}

// LastKnown returns the last resolved location or ErrNoLocation.
func (s *RedisLocationStore) LastKnown(ctx context.Context, userID string) (*monitor.Location, error) {
	var loc monitor.Location
	if err := s.get(ctx, lastKnownKeyPrefix+userID, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// InMemoryStore is a Store for tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	fixes     map[string]Fix
	lastKnown map[string]monitor.Location
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		fixes:     make(map[string]Fix),
		lastKnown: make(map[string]monitor.Location),
	}
}

// SaveFix stores the user's latest fix.
func (s *InMemoryStore) SaveFix(_ context.Context, userID string, fix Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes[userID] = fix
	return nil
}

// LatestFix returns the user's latest fix.
func (s *InMemoryStore) LatestFix(_ context.Context, userID string) (*Fix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fix, ok := s.fixes[userID]
	if !ok {
		return nil, ErrNoLocation
	}
	return &fix, nil
}

// SaveLastKnown stores the last resolved location.
func (s *InMemoryStore) SaveLastKnown(_ context.Context, userID string, loc monitor.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnown[userID] = loc
	return nil
}

// LastKnown returns the last resolved location.
func (s *InMemoryStore) LastKnown(_ context.Context, userID string) (*monitor.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.lastKnown[userID]
	if !ok {
		return nil, ErrNoLocation
	}
	return &loc, nil
}
