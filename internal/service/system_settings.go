package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"memetic/internal/models"
)

const (
	FeatureScheduler       = "feature.scheduler"
	FeatureReconcile       = "feature.reconcile"
	FeatureEventStream     = "feature.event_stream"
	FeatureEventIngestHTTP = "feature.event_ingest_http"
	FeatureIdentityRefresh = "feature.identity_refresh"
	FeatureStatsLog        = "feature.stats_log"
)

const featurePrefix = "feature."

// ErrUnknownSwitch is returned for a switch name outside DefaultFeatureSwitches.
var ErrUnknownSwitch = errors.New("settings: unknown feature switch")

// FeatureSwitch is a switch with its effective value.
type FeatureSwitch struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
	Default bool   `json:"default"`
}

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureScheduler:       true,
		FeatureReconcile:       true,
		FeatureEventStream:     true,
		FeatureEventIngestHTTP: true,
		FeatureIdentityRefresh: true,
		FeatureStatsLog:        true,
	}
}

// SettingsStore is the part of the repository the switches live in.
type SettingsStore interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
}

type SystemSettingsService struct {
	Repo SettingsStore
}

// EnsureDefaultSwitches writes missing switches with their default. Stored
// values are never overwritten, so an operator's OFF survives restarts.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// switchKey accepts a bare name or a full feature.* key.
func switchKey(name string) (string, bool, bool) {
	key := featurePrefix + strings.TrimPrefix(strings.TrimSpace(name), featurePrefix)
	fallback, ok := DefaultFeatureSwitches()[key]
	return key, fallback, ok
}

func (s *SystemSettingsService) Switches(ctx context.Context) []FeatureSwitch {
	defaults := DefaultFeatureSwitches()
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]FeatureSwitch, 0, len(keys))
	for _, key := range keys {
		out = append(out, FeatureSwitch{
			Name:    strings.TrimPrefix(key, featurePrefix),
			Key:     key,
			Enabled: s.IsEnabled(ctx, key, defaults[key]),
			Default: defaults[key],
		})
	}
	return out
}

func (s *SystemSettingsService) Switch(ctx context.Context, name string) (FeatureSwitch, error) {
	key, fallback, ok := switchKey(name)
	if !ok {
		return FeatureSwitch{}, ErrUnknownSwitch
	}
	return FeatureSwitch{
		Name:    strings.TrimPrefix(key, featurePrefix),
		Key:     key,
		Enabled: s.IsEnabled(ctx, key, fallback),
		Default: fallback,
	}, nil
}

// SetSwitch stores enabled for a known switch and returns its new state.
func (s *SystemSettingsService) SetSwitch(ctx context.Context, name string, enabled bool) (FeatureSwitch, error) {
	key, fallback, ok := switchKey(name)
	if !ok {
		return FeatureSwitch{}, ErrUnknownSwitch
	}
	if err := s.SetEnabled(ctx, key, enabled); err != nil {
		return FeatureSwitch{}, err
	}
	return FeatureSwitch{
		Name:    strings.TrimPrefix(key, featurePrefix),
		Key:     key,
		Enabled: enabled,
		Default: fallback,
	}, nil
}

// Gate wraps a periodic job so it only runs while key is enabled.
func (s *SystemSettingsService) Gate(key string, fallback bool, job func(context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		if !s.IsEnabled(ctx, key, fallback) {
			return
		}
		job(ctx)
	}
}
