package user_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/content"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/user"
)

type thresholdCall struct {
	userID string
	t      monitor.Thresholds
}

func newService(t *testing.T) (*user.Service, *user.InMemoryRepository, *[]thresholdCall) {
	t.Helper()

	contentRepo := content.NewInMemoryRepository()
	require.NoError(t, contentRepo.UpsertProfileDefaults(context.Background(), &content.ProfileDefaults{
		MedicalHistoryDefault: "No known conditions",
		MedicationsDefault:    "None",
		SpecialNotesDefault:   "",
	}))

	repo := user.NewInMemoryRepository()
	var calls []thresholdCall
	svc := user.NewService(user.ServiceConfig{
		Repository: repo,
		Defaults:   content.NewService(content.ServiceConfig{Repository: contentRepo, Logger: zerolog.Nop()}),
		Logger:     zerolog.Nop(),
		OnThresholdsChanged: func(userID string, th monitor.Thresholds) error {
			calls = append(calls, thresholdCall{userID, th})
			return nil
		},
	})
	return svc, repo, &calls
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestService_InitializeUsesDefaults(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	profile, err := svc.GetProfile(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "No known conditions", profile.MedicalHistory)
	assert.Equal(t, "None", profile.Medications)
	assert.False(t, profile.IsAdmin)

	settings, err := svc.GetSettings(ctx, "usr_1")
	require.NoError(t, err)
	assert.True(t, settings.NotificationsEnabled)
	assert.True(t, settings.LocationTrackingEnabled)
	assert.False(t, settings.DarkModeEnabled)
	assert.True(t, settings.EmergencyAlertsEnabled)
	assert.False(t, settings.DataSharing)
	assert.False(t, settings.SimulationEnabled)

	th, err := svc.GetThresholds(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, monitor.DefaultThresholds(), th)
}

func TestService_UpdateProfile(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	updated, err := svc.UpdateProfile(ctx, "usr_1", &user.ProfileInput{
		FullName: strPtr("  Ada Lovelace "),
		Username: strPtr("ada"),
		Address1: strPtr("12 St James's Square"),
		Country:  strPtr("UK"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Equal(t, "ada", updated.Username)
	assert.Equal(t, "No known conditions", updated.MedicalHistory, "unset fields are kept")
	assert.Equal(t, "12 St James's Square, UK", updated.Address())
}

func TestService_UsernameTaken(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))
	require.NoError(t, svc.Initialize(ctx, "usr_2"))

	_, err := svc.UpdateProfile(ctx, "usr_1", &user.ProfileInput{Username: strPtr("ada")})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, "usr_2", &user.ProfileInput{Username: strPtr("ADA")})
	assert.ErrorIs(t, err, user.ErrUsernameTaken)

	// Re-saving your own username is fine.
	_, err = svc.UpdateProfile(ctx, "usr_1", &user.ProfileInput{Username: strPtr("ada")})
	assert.NoError(t, err)
}

func TestService_UpdateProfileValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	_, err := svc.UpdateProfile(ctx, "usr_1", &user.ProfileInput{Username: strPtr("has space")})
	var verr *user.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Fields[0].Field)
}

func TestService_AdminFlag(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	admin, err := svc.IsAdmin(ctx, "usr_1")
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, svc.SetAdmin(ctx, "usr_1", true))

	// Profile updates never change the admin flag.
	_, err = svc.UpdateProfile(ctx, "usr_1", &user.ProfileInput{FullName: strPtr("Admin")})
	require.NoError(t, err)

	admin, err = svc.IsAdmin(ctx, "usr_1")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = svc.IsAdmin(ctx, "usr_unknown")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestService_UpdateSettings(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	settings, err := svc.UpdateSettings(ctx, "usr_1", &user.SettingsInput{
		DarkModeEnabled:   boolPtr(true),
		SimulationEnabled: boolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, settings.DarkModeEnabled)
	assert.True(t, settings.NotificationsEnabled)

	ids, err := svc.SimulationUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr_1"}, ids)

	_, err = svc.UpdateSettings(ctx, "usr_1", &user.SettingsInput{EmergencyAlertsEnabled: boolPtr(false)})
	require.NoError(t, err)
	enabled, err := svc.EmergencyAlertsEnabled(ctx, "usr_1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestService_UpdateThresholdsNotifiesMonitor(t *testing.T) {
	svc, _, calls := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "usr_1"))

	want := monitor.Thresholds{HeartRate: 50, Oxygen: 90, Movement: 10}
	stored, err := svc.UpdateThresholds(ctx, "usr_1", want)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Thresholds)

	got, err := svc.GetThresholds(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, *calls, 1)
	assert.Equal(t, "usr_1", (*calls)[0].userID)

	_, err = svc.UpdateThresholds(ctx, "usr_1", monitor.Thresholds{HeartRate: math.NaN(), Oxygen: 90})
	assert.ErrorIs(t, err, monitor.ErrInvalidThresholds)
	assert.Len(t, *calls, 1)
}

func TestService_GetThresholdsDefaultsForUnknownUser(t *testing.T) {
	svc, _, _ := newService(t)

	got, err := svc.GetThresholds(context.Background(), "usr_nobody")
	require.NoError(t, err)
	assert.Equal(t, monitor.DefaultThresholds(), got)
}

type failingDefaults struct{}

func (failingDefaults) GetProfileDefaults(context.Context) (*content.ProfileDefaults, error) {
	return nil, errors.New("db down")
}

func TestService_InitializeWithoutDefaults(t *testing.T) {
	svc := user.NewService(user.ServiceConfig{
		Repository: user.NewInMemoryRepository(),
		Defaults:   failingDefaults{},
		Logger:     zerolog.Nop(),
	})
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx, "usr_1"))
	profile, err := svc.GetProfile(ctx, "usr_1")
	require.NoError(t, err)
	assert.Empty(t, profile.MedicalHistory)
}
