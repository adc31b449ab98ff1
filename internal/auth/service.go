package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Predefined service errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError wraps field errors reported for a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s", e.Fields[0].Message)
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// FindByEmail finds a user by normalized email address.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create creates a new user. Returns ErrEmailTaken on conflict.
	Create(ctx context.Context, user *User) error

	// FindByID finds a user by their internal ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// TouchLogin records a successful login.
	TouchLogin(ctx context.Context, id string, at time.Time) error

	// Delete removes a user and everything owned by them.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository stores refresh tokens by the hash of their value.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error

	// FindByHash returns ErrInvalidRefreshToken for unknown hashes.
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// Revoke reports whether this call revoked the token. It is false when
	// the token is unknown or was already revoked.
	Revoke(ctx context.Context, hash string, at time.Time) (bool, error)

	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Service provides authentication operations.
type Service struct {
	jwtService   *JWTService
	userRepo     UserRepository
	refreshRepo  RefreshTokenRepository
	onRegistered func(ctx context.Context, user *User) error
	bcryptCost   int
	clock        clock.Clock
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService  *JWTService
	UserRepo    UserRepository
	RefreshRepo RefreshTokenRepository

	// OnRegistered runs after a user row is created, before tokens are issued.
	// Used to seed the profile, settings and thresholds.
	OnRegistered func(ctx context.Context, user *User) error

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	Clock clock.Clock
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	return &Service{
		jwtService:   cfg.JWTService,
		userRepo:     cfg.UserRepo,
		refreshRepo:  cfg.RefreshRepo,
		onRegistered: cfg.OnRegistered,
		bcryptCost:   cost,
		clock:        clk,
	}
}

// Register creates an account and returns API tokens.
func (s *Service) Register(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	creds.Normalize()
	if errs := creds.ValidateRegistration(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.clock.Now().UTC()
	user := &User{
		ID:           generateUserID(),
		Email:        creds.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if s.onRegistered != nil {
		if err := s.onRegistered(ctx, user); err != nil {
			return nil, fmt.Errorf("initializing user: %w", err)
		}
	}

	return s.generateTokens(ctx, user)
}

// Login verifies credentials and returns API tokens.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	creds.Normalize()
	if errs := creds.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	user, err := s.userRepo.FindByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now().UTC()
	if err := s.userRepo.TouchLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	user.LastLoginAt = &now

	return s.generateTokens(ctx, user)
}

// RefreshAccessToken exchanges a refresh token for a new token pair. The
// presented token is single use. Replaying a revoked token is treated as
// theft and ends every session of the user.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	hash := HashRefreshToken(refreshToken)
	stored, err := s.refreshRepo.FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	now := s.clock.Now().UTC()
	if stored.RevokedAt != nil {
		return nil, s.revokeOnReuse(ctx, stored.UserID, now)
	}
	if now.After(stored.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	revoked, err := s.refreshRepo.Revoke(ctx, hash, now)
	if err != nil {
		return nil, fmt.Errorf("revoking old refresh token: %w", err)
	}
	if !revoked {
		// A concurrent refresh won the race with the same token.
		return nil, s.revokeOnReuse(ctx, stored.UserID, now)
	}

	return s.generateTokens(ctx, user)
}

func (s *Service) revokeOnReuse(ctx context.Context, userID string, now time.Time) error {
	if err := s.refreshRepo.RevokeAllForUser(ctx, userID, now); err != nil {
		return fmt.Errorf("revoking sessions after token reuse: %w", err)
	}
	return ErrInvalidRefreshToken
}

// ValidateAccessToken validates an access token and returns the user ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

// RevokeRefreshToken revokes one refresh token. Unknown tokens are ignored.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	_, err := s.refreshRepo.Revoke(ctx, HashRefreshToken(refreshToken), s.clock.Now().UTC())
	return err
}

// RevokeAllTokens revokes all refresh tokens for a user (logout everywhere).
func (s *Service) RevokeAllTokens(ctx context.Context, userID string) error {
	return s.refreshRepo.RevokeAllForUser(ctx, userID, s.clock.Now().UTC())
}

// PruneRefreshTokens deletes refresh tokens that expired before now.
func (s *Service) PruneRefreshTokens(ctx context.Context) (int64, error) {
	return s.refreshRepo.DeleteExpired(ctx, s.clock.Now().UTC())
}

// DeleteAccount revokes every session and removes the user.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.RevokeAllTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}
	return s.userRepo.Delete(ctx, userID)
}

// generateTokens generates both access and refresh tokens for a user.
func (s *Service) generateTokens(ctx context.Context, user *User) (*TokenResponse, error) {
	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	now := s.clock.Now().UTC()
	if err := s.refreshRepo.Create(ctx, &RefreshToken{
		ID:        uuid.NewString(),
		TokenHash: HashRefreshToken(refreshToken),
		UserID:    user.ID,
		ExpiresAt: now.Add(RefreshTokenExpiry),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(expiresAt.Sub(now).Seconds()),
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// generateUserID generates a unique user ID with prefix.
func generateUserID() string {
	return "usr_" + uuid.New().String()[:22]
}
