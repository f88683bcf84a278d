package logging

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []string{"debug", "info", "warn", "error", "", "unknown"}

	for _, level := range tests {
		t.Run(level, func(t *testing.T) {
			l, err := New(level)
			if err != nil {
				t.Fatalf("New(%q) returned error: %v", level, err)
			}
			if l == nil {
				t.Fatalf("New(%q) returned nil logger", level)
			}
		})
	}
}

func TestNewWithFileSink(t *testing.T) {
	dir := t.TempDir()
	l, err := NewWithOptions(Options{
		Level: "info",
		File:  filepath.Join(dir, "router.log"),
	})
	if err != nil {
		t.Fatalf("NewWithOptions returned error: %v", err)
	}
	l.Info("file sink smoke test")
	l.Sync()
}

func TestGlobalSetGlobal(t *testing.T) {
	original := Global()
	if original == nil {
		t.Fatal("Global() returned nil before SetGlobal")
	}

	core, obs := observer.New(zapcore.InfoLevel)
	SetGlobal(zap.New(core))
	defer SetGlobal(original)

	Info("test message", zap.String("key", "value"))

	entries := obs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "test message" {
		t.Errorf("expected message %q, got %q", "test message", entries[0].Message)
	}
}

func TestLogLevels(t *testing.T) {
	original := Global()
	core, obs := observer.New(zapcore.DebugLevel)
	SetGlobal(zap.New(core))
	defer SetGlobal(original)

	Debug("debug msg")
	Info("info msg")
	Warn("warn msg")
	Error("error msg")

	entries := obs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
}
