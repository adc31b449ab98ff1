package auth_test

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/auth"
)

const (
	testIssuer   = "https://api.lifelink.app"
	testAudience = "lifelink-api"
)

func newJWT(key string, clk *fakeclock.FakeClock) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     testIssuer,
		Audience:   testAudience,
		Clock:      clk,
	})
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := newJWT("test-secret-key-for-testing-only", clk)

	token, expiresAt, err := svc.GenerateAccessToken(&auth.User{ID: "usr_test123", Email: "test@example.com"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(auth.AccessTokenExpiry), expiresAt)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.UserID)
	assert.Equal(t, "usr_test123", claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_Expiry(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := newJWT("test-key", clk)

	token, _, err := svc.GenerateAccessToken(&auth.User{ID: "usr_test123"})
	require.NoError(t, err)

	clk.Increment(auth.AccessTokenExpiry - time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.NoError(t, err)

	clk.Increment(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_KeyRotation(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	old := newJWT("key-one", clk)
	token, _, err := old.GenerateAccessToken(&auth.User{ID: "usr_test123"})
	require.NoError(t, err)

	rotated := auth.NewJWTService(auth.JWTConfig{
		SigningKey:         "key-two",
		PreviousSigningKey: "key-one",
		Issuer:             testIssuer,
		Audience:           testAudience,
		Clock:              clk,
	})
	claims, err := rotated.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.UserID)

	_, err = newJWT("key-two", clk).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_Rejects(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := newJWT("test-key", clk)

	sign := func(issuer, audience, key string) string {
		t.Helper()
		token, _, err := auth.NewJWTService(auth.JWTConfig{
			SigningKey: key, Issuer: issuer, Audience: audience, Clock: clk,
		}).GenerateAccessToken(&auth.User{ID: "usr_test123"})
		require.NoError(t, err)
		return token
	}

	mismatched := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "usr_someone_else",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
		UserID: "usr_test123",
	})
	mismatchedToken, err := mismatched.SignedString([]byte("test-key"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":            "",
		"malformed":        "not.a.valid.jwt",
		"invalid base64":   "xxx.yyy.zzz",
		"wrong key":        sign(testIssuer, testAudience, "other-key"),
		"wrong issuer":     sign("https://evil.example", testAudience, "test-key"),
		"wrong audience":   sign(testIssuer, "lifelink-files", "test-key"),
		"subject mismatch": mismatchedToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	token1, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	token2, err := auth.GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, token1, token2)
	assert.Regexp(t, `^[A-Za-z0-9_-]{43}$`, token1)
}
