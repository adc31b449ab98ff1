package document

import (
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "lifelink-files"

// DownloadClaims identify one document download.
type DownloadClaims struct {
	jwt.RegisteredClaims
	DocumentID string `json:"doc"`
}

// URLSigner issues and verifies download tokens.
type URLSigner struct {
	key   []byte
	ttl   time.Duration
	clock clock.Clock
}

// NewURLSigner creates a signer. A zero ttl uses DefaultURLTTL.
func NewURLSigner(key string, ttl time.Duration, clk clock.Clock) *URLSigner {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &URLSigner{key: []byte(key), ttl: ttl, clock: clk}
}

// Sign returns a token granting userID access to docID.
func (s *URLSigner) Sign(userID, docID string) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		DocumentID: docID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing download token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks a token and returns its claims.
func (s *URLSigner) Verify(token string) (*DownloadClaims, error) {
	var claims DownloadClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(downloadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !parsed.Valid || claims.DocumentID == "" || claims.Subject == "" {
		return nil, ErrInvalidURL
	}
	return &claims, nil
}
