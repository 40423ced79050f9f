package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/kuhlman-labs/migration-planner/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "debug", Format: "text"})
	if logger == nil {
		t.Fatal("expected logger")
	}
	logger.Debug("debug message")

	mgr := GetLogLevelManager()
	if mgr == nil {
		t.Fatal("expected level manager after NewLogger")
	}
	if got := mgr.GetLevel(); got != "debug" {
		t.Errorf("GetLevel() = %s, want debug", got)
	}

	mgr.SetLevel("error")
	if got := mgr.GetLevel(); got != "error" {
		t.Errorf("GetLevel() after SetLevel = %s, want error", got)
	}
	mgr.ResetToDefault()
	if got := mgr.GetLevel(); got != "debug" {
		t.Errorf("GetLevel() after reset = %s, want debug", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	)
	logger := slog.New(h)
	logger.Info("hello", "key", "value")

	if a.Len() == 0 || b.Len() == 0 {
		t.Error("expected both handlers to receive the record")
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be enabled")
	}
}
