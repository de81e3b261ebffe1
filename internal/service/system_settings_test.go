package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"memetic/internal/models"
	"memetic/internal/repository/memory"
)

func TestEnsureDefaultSwitchesKeepsOperatorValues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if err := store.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:   FeatureEventStream,
		Value: datatypes.JSON([]byte("false")),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := &SystemSettingsService{Repo: store}
	if err := svc.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("EnsureDefaultSwitches: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureEventStream, true) {
		t.Fatalf("stored OFF switch was overwritten")
	}
	for key := range DefaultFeatureSwitches() {
		if item, _ := store.GetSystemSettingByKey(ctx, key); item == nil {
			t.Fatalf("switch %s not written", key)
		}
	}
}

func TestIsEnabledFallback(t *testing.T) {
	ctx := context.Background()
	var nilSvc *SystemSettingsService
	if !nilSvc.IsEnabled(ctx, FeatureScheduler, true) {
		t.Fatalf("nil service should return fallback")
	}
	svc := &SystemSettingsService{Repo: memory.New()}
	if svc.IsEnabled(ctx, "feature.unknown", false) {
		t.Fatalf("missing key should return fallback")
	}
	if err := svc.SetEnabled(ctx, FeatureReconcile, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureReconcile, true) {
		t.Fatalf("expected reconcile disabled")
	}
}

func TestGateSkipsDisabledJob(t *testing.T) {
	ctx := context.Background()
	svc := &SystemSettingsService{Repo: memory.New()}
	runs := 0
	job := svc.Gate(FeatureStatsLog, true, func(context.Context) { runs++ })
	job(ctx)
	if err := svc.SetEnabled(ctx, FeatureStatsLog, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	job(ctx)
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestSwitchesByName(t *testing.T) {
	ctx := context.Background()
	svc := &SystemSettingsService{Repo: memory.New()}

	if _, err := svc.SetSwitch(ctx, "teleport", true); !errors.Is(err, ErrUnknownSwitch) {
		t.Fatalf("expected ErrUnknownSwitch, got %v", err)
	}
	sw, err := svc.SetSwitch(ctx, "stats_log", false)
	if err != nil {
		t.Fatalf("SetSwitch: %v", err)
	}
	if sw.Key != FeatureStatsLog || sw.Enabled || !sw.Default {
		t.Fatalf("unexpected switch %+v", sw)
	}
	sw, err = svc.Switch(ctx, FeatureStatsLog)
	if err != nil || sw.Name != "stats_log" || sw.Enabled {
		t.Fatalf("Switch = %+v, %v", sw, err)
	}

	all := svc.Switches(ctx)
	if len(all) != len(DefaultFeatureSwitches()) {
		t.Fatalf("Switches returned %d entries", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("switches not sorted: %s before %s", all[i-1].Key, all[i].Key)
		}
	}
}
