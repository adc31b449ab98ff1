package featureflags_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/featureflags"
)

func newService(repo featureflags.Repository, ttl time.Duration) (*featureflags.Service, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Clock:      clk,
		CacheTTL:   ttl,
	}), clk
}

func TestService_Defaults(t *testing.T) {
	service, _ := newService(featureflags.NewInMemoryRepository(), time.Minute)
	ctx := context.Background()

	if service.IsAlertsSendingDisabled(ctx) {
		t.Error("expected alerts sending to be enabled by default")
	}
	if !service.IsVitalsSimulationEnabled(ctx) {
		t.Error("expected vitals simulation to be enabled by default")
	}
	if !service.IsEmailAlertsEnabled(ctx) || !service.IsPushAlertsEnabled(ctx) || !service.IsCallCenterAlertsEnabled(ctx) {
		t.Error("expected every dispatch channel to be enabled by default")
	}
	if got := service.MonitorPollInterval(ctx); got != 5*time.Second {
		t.Errorf("MonitorPollInterval() = %v, want 5s", got)
	}
	if service.Get(ctx, "unknown_flag") != nil {
		t.Error("expected nil for a flag without default")
	}
}

func TestService_Update(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service, clk := newService(repo, time.Minute)
	ctx := context.Background()

	flags, err := service.Update(ctx, []featureflags.FlagUpdate{
		{Key: featureflags.FlagEmailAlerts, Value: false},
		{Key: featureflags.FlagMonitorPollSeconds, Value: float64(2)},
	}, "usr_admin")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("Update() returned %d flags, want 2", len(flags))
	}

	if service.IsEmailAlertsEnabled(ctx) {
		t.Error("expected email alerts to be disabled")
	}
	if !service.IsPushAlertsEnabled(ctx) {
		t.Error("expected push alerts to stay enabled")
	}
	if got := service.MonitorPollInterval(ctx); got != 2*time.Second {
		t.Errorf("MonitorPollInterval() = %v, want 2s", got)
	}

	stored, err := repo.Get(ctx, featureflags.FlagEmailAlerts)
	if err != nil {
		t.Fatalf("repo.Get() error = %v", err)
	}
	if stored.UpdatedBy != "usr_admin" {
		t.Errorf("UpdatedBy = %q, want usr_admin", stored.UpdatedBy)
	}
	if !stored.UpdatedAt.Equal(clk.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", stored.UpdatedAt, clk.Now())
	}
}

func TestService_UpdateRejectsInvalidValues(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service, _ := newService(repo, time.Minute)
	ctx := context.Background()

	_, err := service.Update(ctx, []featureflags.FlagUpdate{
		{Key: featureflags.FlagPushAlerts, Value: false},
		{Key: featureflags.FlagEmailAlerts, Value: "off"},
		{Key: featureflags.FlagMonitorPollSeconds, Value: float64(0)},
		{Key: "sms_alerts", Value: true},
	}, "usr_admin")

	var verr *featureflags.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Update() error = %v, want ValidationError", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("got %d field errors, want 3: %+v", len(verr.Fields), verr.Fields)
	}
	if verr.Fields[2].Code != "UNKNOWN_FLAG" {
		t.Errorf("code = %q, want UNKNOWN_FLAG", verr.Fields[2].Code)
	}

	// The valid update in the same request is not applied.
	if !service.IsPushAlertsEnabled(ctx) {
		t.Error("expected push alerts to stay enabled")
	}
	if stored, _ := repo.List(ctx); len(stored) != 0 {
		t.Errorf("expected nothing stored, got %d flags", len(stored))
	}
}

func TestService_List(t *testing.T) {
	service, _ := newService(featureflags.NewInMemoryRepository(), time.Minute)
	ctx := context.Background()

	if _, err := service.Update(ctx, []featureflags.FlagUpdate{{Key: featureflags.FlagPushAlerts, Value: false}}, "usr_admin"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	flags := service.List(ctx)
	if len(flags) != len(featureflags.Definitions()) {
		t.Fatalf("List() returned %d flags, want %d", len(flags), len(featureflags.Definitions()))
	}
	for i := 1; i < len(flags); i++ {
		if flags[i-1].Key > flags[i].Key {
			t.Fatalf("List() not sorted: %q before %q", flags[i-1].Key, flags[i].Key)
		}
	}
	for _, f := range flags {
		if f.Key == featureflags.FlagPushAlerts && (f.BoolValue(true) || f.UpdatedBy != "usr_admin") {
			t.Errorf("unexpected push_alerts entry: %+v", f)
		}
	}
}

func TestService_CacheExpiry(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service, clk := newService(repo, time.Minute)
	ctx := context.Background()

	if !service.IsPushAlertsEnabled(ctx) {
		t.Fatal("expected push alerts enabled")
	}

	// Bypass the service so the snapshot goes stale.
	_ = repo.Upsert(ctx, []*featureflags.Flag{{Key: featureflags.FlagPushAlerts, Value: false}})
	if !service.IsPushAlertsEnabled(ctx) {
		t.Error("expected cached value before the TTL elapses")
	}

	clk.Increment(time.Minute)
	if service.IsPushAlertsEnabled(ctx) {
		t.Error("expected reloaded value after the TTL")
	}
}

func TestService_InvalidateCache(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service, _ := newService(repo, time.Hour)
	ctx := context.Background()

	if service.IsAlertsSendingDisabled(ctx) {
		t.Fatal("expected alerts sending enabled")
	}
	_ = repo.Upsert(ctx, []*featureflags.Flag{{Key: featureflags.FlagDisableAlertsSending, Value: true}})

	service.InvalidateCache()

	if !service.IsAlertsSendingDisabled(ctx) {
		t.Error("expected updated value after cache invalidation")
	}
}

func TestService_RepositoryFailureKeepsSnapshot(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service, clk := newService(repo, time.Minute)
	ctx := context.Background()

	if _, err := service.Update(ctx, []featureflags.FlagUpdate{{Key: featureflags.FlagEmailAlerts, Value: false}}, "usr_admin"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if service.IsEmailAlertsEnabled(ctx) {
		t.Fatal("expected email alerts disabled")
	}

	repo.Err = errors.New("connection refused")
	clk.Increment(2 * time.Minute)

	if service.IsEmailAlertsEnabled(ctx) {
		t.Error("expected the last snapshot to be served while the repository fails")
	}
	if _, err := service.Update(ctx, []featureflags.FlagUpdate{{Key: featureflags.FlagEmailAlerts, Value: true}}, "usr_admin"); err == nil {
		t.Error("expected Update to surface the repository error")
	}
}

func TestService_NilService(t *testing.T) {
	var service *featureflags.Service
	ctx := context.Background()

	if service.IsAlertsSendingDisabled(ctx) {
		t.Error("expected nil service to use defaults")
	}
	if !service.IsEmailAlertsEnabled(ctx) {
		t.Error("expected nil service to use defaults")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		want    interface{}
		wantErr error
	}{
		{"bool", featureflags.FlagPushAlerts, true, true, nil},
		{"bool as string", featureflags.FlagPushAlerts, "true", nil, featureflags.ErrInvalidValue},
		{"int from json", featureflags.FlagMonitorPollSeconds, float64(10), float64(10), nil},
		{"int literal", featureflags.FlagMonitorPollSeconds, 30, float64(30), nil},
		{"fractional", featureflags.FlagMonitorPollSeconds, 1.5, nil, featureflags.ErrInvalidValue},
		{"above max", featureflags.FlagMonitorPollSeconds, float64(301), nil, featureflags.ErrInvalidValue},
		{"unknown", "beta_dashboard", true, nil, featureflags.ErrUnknownFlag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := featureflags.Normalize(tt.key, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlag_NilFlag(t *testing.T) {
	var flag *featureflags.Flag

	if !flag.BoolValue(true) {
		t.Error("expected default value for nil flag")
	}
	if flag.IntValue(42) != 42 {
		t.Error("expected default value for nil flag")
	}
}
