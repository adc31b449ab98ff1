package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lifelink/lifelink/internal/auth"
)

type fixture struct {
	svc    *auth.Service
	users  *auth.InMemoryUserRepository
	tokens *auth.InMemoryRefreshTokenRepository
	clock  *fakeclock.FakeClock
}

func newFixture(t *testing.T, onRegistered func(context.Context, *auth.User) error) *fixture {
	t.Helper()
	f := &fixture{
		users:  auth.NewInMemoryUserRepository(),
		tokens: auth.NewInMemoryRefreshTokenRepository(),
		clock:  fakeclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: "test-secret-key-for-testing-only",
			Issuer:     "https://api.lifelink.app",
			Audience:   "lifelink-api",
			Clock:      f.clock,
		}),
		UserRepo:     f.users,
		RefreshRepo:  f.tokens,
		OnRegistered: onRegistered,
		BcryptCost:   bcrypt.MinCost,
		Clock:        f.clock,
	})
	return f
}

func newService(t *testing.T, onRegistered func(context.Context, *auth.User) error) (*auth.Service, *auth.InMemoryUserRepository) {
	t.Helper()
	f := newFixture(t, onRegistered)
	return f.svc, f.users
}

func TestService_RegisterAndLogin(t *testing.T) {
	var registered []string
	svc, users := newService(t, func(_ context.Context, u *auth.User) error {
		registered = append(registered, u.ID)
		return nil
	})
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.Credentials{Email: "  Ada@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.User.ID, "usr_"))
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(auth.AccessTokenExpiry.Seconds()), resp.ExpiresIn)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, []string{resp.User.ID}, registered)

	stored, err := users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	userID, err := svc.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)

	login, err := svc.Login(ctx, auth.Credentials{Email: "ADA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
	require.NotNil(t, login.User.LastLoginAt)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, auth.Credentials{Email: "Ada@Example.com", Password: "password2"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newService(t, nil)

	tests := []struct {
		name  string
		creds auth.Credentials
		field string
	}{
		{"missing email", auth.Credentials{Password: "password1"}, "email"},
		{"invalid email", auth.Credentials{Email: "not-an-email", Password: "password1"}, "email"},
		{"short password", auth.Credentials{Email: "ada@example.com", Password: "short"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.creds)
			var verr *auth.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestService_RegisterHookFailure(t *testing.T) {
	svc, _ := newService(t, func(context.Context, *auth.User) error {
		return errors.New("profile store down")
	})

	_, err := svc.Register(context.Background(), auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initializing user")
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, auth.Credentials{Email: "ada@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, auth.Credentials{Email: "nobody@example.com", Password: "password1"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestService_RefreshRotatesToken(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshAccessToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	_, err = svc.RefreshAccessToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken, "a rotated token cannot be reused")

	_, err = svc.RefreshAccessToken(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestService_RefreshReuseRevokesSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)
	rotated, err := f.svc.RefreshAccessToken(ctx, resp.RefreshToken)
	require.NoError(t, err)

	// Replaying the first token also kills the token issued by the rotation.
	_, err = f.svc.RefreshAccessToken(ctx, resp.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = f.svc.RefreshAccessToken(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestService_RefreshTokenStoredHashed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	stored, err := f.tokens.FindByHash(ctx, auth.HashRefreshToken(resp.RefreshToken))
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, stored.TokenHash)
	assert.Len(t, stored.TokenHash, 64)
	assert.Equal(t, f.clock.Now().Add(auth.RefreshTokenExpiry), stored.ExpiresAt)
}

func TestService_RefreshExpiredAndPrune(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	f.clock.Increment(auth.RefreshTokenExpiry + time.Minute)
	_, err = f.svc.RefreshAccessToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrRefreshTokenExpired)

	n, err := f.svc.PruneRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.RefreshAccessToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestService_RevokeAllTokens(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllTokens(ctx, first.User.ID))

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := svc.RefreshAccessToken(ctx, token)
		assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
	}
}

func TestService_DeleteAccount(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, resp.User.ID))

	_, err = svc.GetUser(ctx, resp.User.ID)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = svc.RefreshAccessToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	// The email is free again.
	_, err = svc.Register(ctx, auth.Credentials{Email: "ada@example.com", Password: "password1"})
	assert.NoError(t, err)
}
