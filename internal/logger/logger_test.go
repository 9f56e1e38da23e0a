package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"WARNING", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw); got != tt.want {
			t.Fatalf("parseLevel(%q)=%v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNewFileSinkCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: dir, Name: "test.log"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log directory not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test.log")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestNewNoSinksFallsBack(t *testing.T) {
	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if logger == nil {
		t.Fatal("logger=nil")
	}
}
