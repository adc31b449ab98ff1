package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrStateNotFound is returned when no snapshot is stored for a subject.
var ErrStateNotFound = errors.New("monitor state not found")

// StateStore persists monitor snapshots so any API instance can read them.
type StateStore interface {
	Save(ctx context.Context, s State) error
	Load(ctx context.Context, subjectID string) (State, error)
	Delete(ctx context.Context, subjectID string) error
}

const (
	defaultStateKeyPrefix = "lifelink:monitor:"
	defaultStateTTL       = 24 * time.Hour
)

// RedisStateStore stores snapshots as JSON strings with a TTL.
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStateStore creates a store. Empty prefix and zero TTL use defaults.
func NewRedisStateStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = defaultStateKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *RedisStateStore) key(subjectID string) string {
	return s.keyPrefix + subjectID
}

// Save writes the snapshot and refreshes its TTL.
func (s *RedisStateStore) Save(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(st.SubjectID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save monitor state: %w", err)
	}
	return nil
}

// Load reads the snapshot of a subject.
func (s *RedisStateStore) Load(ctx context.Context, subjectID string) (State, error) {
	val, err := s.client.Get(ctx, s.key(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("failed to load monitor state: %w", err)
	}

	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return State{}, fmt.Errorf("failed to unmarshal monitor state: %w", err)
	}
	return st, nil
}

// Delete removes the snapshot of a subject.
func (s *RedisStateStore) Delete(ctx context.Context, subjectID string) error {
	if err := s.client.Del(ctx, s.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("failed to delete monitor state: %w", err)
	}
	return nil
}

// InMemoryStateStore is a StateStore for tests and single-instance setups.
type InMemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewInMemoryStateStore creates an empty in-memory store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{states: make(map[string]State)}
}

// Save stores the snapshot.
func (s *InMemoryStateStore) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.SubjectID] = st
	return nil
}

// Load returns the stored snapshot.
func (s *InMemoryStateStore) Load(_ context.Context, subjectID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[subjectID]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return st, nil
}

// Delete removes the snapshot.
func (s *InMemoryStateStore) Delete(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, subjectID)
	return nil
}
