package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sessions use two tokens:
//
//   - Access tokens are HS256 JWTs valid for one hour. They carry the user ID
//     and are sent as a Bearer token on every request.
//   - Refresh tokens are opaque, valid for 30 days and single use. Every
//     refresh revokes the presented token and issues a new pair. Presenting
//     an already revoked token revokes every session of the user.
//
// POST /v1/auth/logout revokes one refresh token, POST /v1/auth/logout-all
// revokes every refresh token of the user. Access tokens stay valid until
// they expire.

// Token expiry constants.
const (
	// AccessTokenExpiry is how long access tokens are valid.
	AccessTokenExpiry = 1 * time.Hour

	// RefreshTokenExpiry is how long refresh tokens are valid.
	RefreshTokenExpiry = 30 * 24 * time.Hour

	// RefreshTokenLength is the byte length of refresh tokens.
	RefreshTokenLength = 32
)

// Predefined JWT errors.
var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrAccessTokenExpired  = errors.New("access token has expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
)

// JWTClaims represents the claims in our API access tokens.
type JWTClaims struct {
	jwt.RegisteredClaims

	// UserID is the authenticated user's ID.
	UserID string `json:"uid"`
}

// JWTService signs and verifies access tokens.
type JWTService struct {
	signingKey  []byte
	previousKey []byte
	issuer      string
	audience    string
	ttl         time.Duration
	clock       clock.Clock
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey signs new tokens.
	SigningKey string

	// PreviousSigningKey still verifies tokens issued before a key rotation.
	PreviousSigningKey string

	// Issuer is the issuer claim for tokens (e.g., "https://api.lifelink.app").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "lifelink-api").
	Audience string

	// AccessTTL defaults to AccessTokenExpiry.
	AccessTTL time.Duration

	Clock clock.Clock
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = AccessTokenExpiry
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	s := &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        ttl,
		clock:      clk,
	}
	if cfg.PreviousSigningKey != "" {
		s.previousKey = []byte(cfg.PreviousSigningKey)
	}
	return s
}

// GenerateAccessToken issues an access token for user and returns its expiry.
func (s *JWTService) GenerateAccessToken(user *User) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID: user.ID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies a token and returns its claims. Tokens signed
// with the previous key are accepted until they expire.
func (s *JWTService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	claims, err := s.parse(tokenString, s.signingKey)
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) && s.previousKey != nil {
		claims, err = s.parse(tokenString, s.previousKey)
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	case claims.UserID == "" || claims.UserID != claims.Subject:
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, key []byte) (*JWTClaims, error) {
	var claims JWTClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	return &claims, err
}

// RefreshToken is a stored refresh token. Only the SHA-256 of the value
// handed to the client is kept.
type RefreshToken struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// GenerateRefreshToken returns a random URL-safe refresh token.
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, RefreshTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshToken returns the hex SHA-256 of a refresh token value.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
