package device_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/device"
)

func newService() *device.Service {
	return device.NewService(device.NewInMemoryRepository(), zerolog.Nop())
}

func TestService_RegisterIsUpsert(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, created, err := svc.Register(ctx, "usr_1", &device.RegisterRequest{Token: "fcm-token-abcd"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(first.ID, "dev_"))
	assert.Equal(t, device.KindPush, first.Kind)
	assert.Equal(t, device.PlatformFCM, first.Platform)
	assert.Equal(t, "abcd", first.TokenLast4())

	again, created, err := svc.Register(ctx, "usr_1", &device.RegisterRequest{Token: "fcm-token-abcd", Name: "Pixel"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	devices, err := svc.List(ctx, "usr_1", "", 0)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Pixel", devices[0].Name)
}

func TestService_RegisterMovesTokenBetweenUsers(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "usr_1", &device.RegisterRequest{Token: "shared"})
	require.NoError(t, err)
	_, created, err := svc.Register(ctx, "usr_2", &device.RegisterRequest{Token: "shared"})
	require.NoError(t, err)
	assert.False(t, created)

	tokens, err := svc.PushTokens(ctx, "usr_1")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	tokens, err = svc.PushTokens(ctx, "usr_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, tokens)
}

func TestService_RegisterValidation(t *testing.T) {
	svc := newService()

	tests := []struct {
		name  string
		req   device.RegisterRequest
		field string
	}{
		{"missing token", device.RegisterRequest{Kind: device.KindPush}, "token"},
		{"bad kind", device.RegisterRequest{Kind: "PAGER", Token: "x"}, "kind"},
		{"bad platform", device.RegisterRequest{Kind: device.KindPush, Token: "x", Platform: "WNS"}, "platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), "usr_1", &tt.req)
			var verr *device.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestService_ResolveWearable(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "usr_1", &device.RegisterRequest{Kind: device.KindWearable, Token: "sensor-42"})
	require.NoError(t, err)

	userID, err := svc.ResolveWearable(ctx, "sensor-42")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", userID)

	devices, err := svc.List(ctx, "usr_1", device.KindWearable, 0)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.NotNil(t, devices[0].LastSeenAt)

	_, err = svc.ResolveWearable(ctx, "sensor-unknown")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	tokens, err := svc.PushTokens(ctx, "usr_1")
	require.NoError(t, err)
	assert.Empty(t, tokens, "wearables are not push targets")
}

func TestService_Unregister(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	d, _, err := svc.Register(ctx, "usr_1", &device.RegisterRequest{Token: "tok"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Unregister(ctx, "usr_2", d.ID), device.ErrDeviceNotFound)
	require.NoError(t, svc.Unregister(ctx, "usr_1", d.ID))
	assert.ErrorIs(t, svc.Unregister(ctx, "usr_1", d.ID), device.ErrDeviceNotFound)
}
