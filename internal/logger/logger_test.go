package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"memetic/internal/config"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolver.log")
	log, err := New(config.LogConfig{Level: "debug", Encoding: "json", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("ledger applied")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "ledger applied") {
		t.Fatalf("log file missing entry: %q", string(raw))
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "loud"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be disabled")
	}
	if OrNop(nil) == nil {
		t.Fatalf("OrNop returned nil")
	}
}
