package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.CoinGecko.MinInterval != 1200*time.Millisecond {
		t.Fatalf("coingecko min interval = %v", cfg.Providers.CoinGecko.MinInterval)
	}
	if cfg.Chain.DeploymentTimestamp != 1735689600 {
		t.Fatalf("deployment timestamp = %d", cfg.Chain.DeploymentTimestamp)
	}
	if cfg.Scheduler.MaxAttempts != 3 || cfg.Scheduler.BaseBackoff != 2*time.Second {
		t.Fatalf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.Scoring.Win != 10 || cfg.Scoring.Loss != -5 {
		t.Fatalf("scoring defaults = %+v", cfg.Scoring)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("server:\n  http_addr: \":9090\"\nscoring:\n  policy: magnitude\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MFS_SCORING_POLICY", "fixed")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Fatalf("http addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Scoring.Policy != "fixed" {
		t.Fatalf("env override ignored, policy = %q", cfg.Scoring.Policy)
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
}
