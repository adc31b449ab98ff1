package auth

import (
	"context"
	"sync"
	"time"
)

// InMemoryUserRepository keeps accounts in process memory. Used by tests and
// local runs without Postgres.
type InMemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	idByKey map[string]string // normalized email -> user ID
}

// NewInMemoryUserRepository creates an empty repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:   make(map[string]User),
		idByKey: make(map[string]string),
	}
}

func cloneUser(u User) *User {
	if u.LastLoginAt != nil {
		at := *u.LastLoginAt
		u.LastLoginAt = &at
	}
	return &u
}

// FindByEmail implements UserRepository.
func (r *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idByKey[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

// FindByID implements UserRepository.
func (r *InMemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

// Create implements UserRepository.
func (r *InMemoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.idByKey[user.Email]; taken {
		return ErrEmailTaken
	}
	r.users[user.ID] = *cloneUser(*user)
	r.idByKey[user.Email] = user.ID
	return nil
}

// TouchLogin implements UserRepository.
func (r *InMemoryUserRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	r.users[id] = u
	return nil
}

// Delete implements UserRepository.
func (r *InMemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.idByKey, u.Email)
	delete(r.users, id)
	return nil
}

// InMemoryRefreshTokenRepository keeps refresh tokens in process memory.
type InMemoryRefreshTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]RefreshToken
}

// NewInMemoryRefreshTokenRepository creates an empty repository.
func NewInMemoryRefreshTokenRepository() *InMemoryRefreshTokenRepository {
	return &InMemoryRefreshTokenRepository{byHash: make(map[string]RefreshToken)}
}

// Create implements RefreshTokenRepository.
func (r *InMemoryRefreshTokenRepository) Create(_ context.Context, token *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHash[token.TokenHash] = *token
	return nil
}

// FindByHash implements RefreshTokenRepository.
func (r *InMemoryRefreshTokenRepository) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[hash]
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	return &t, nil
}

// Revoke implements RefreshTokenRepository.
func (r *InMemoryRefreshTokenRepository) Revoke(_ context.Context, hash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[hash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	r.byHash[hash] = t
	return true, nil
}

// RevokeAllForUser implements RefreshTokenRepository.
func (r *InMemoryRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, t := range r.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			r.byHash[hash] = t
		}
	}
	return nil
}

// DeleteExpired implements RefreshTokenRepository.
func (r *InMemoryRefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, t := range r.byHash {
		if t.ExpiresAt.Before(before) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}
