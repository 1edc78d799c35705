package infra

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesActivityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trading_bot.log")

	logger, closer := NewLogger(LoggingConfig{Level: "info", File: path, MaxSizeMB: 1})
	logger.Info("Next Valid Order ID: 7")
	logger.Debug("hidden at info level")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "Next Valid Order ID: 7") {
		t.Errorf("expected message in activity log, got %q", out)
	}
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "time=") {
		t.Errorf("expected timestamp and level, got %q", out)
	}
	if strings.Contains(out, "hidden at info level") {
		t.Error("debug line should be filtered")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	prev := CalculateBackoff(0)
	for retry := 1; retry < 10; retry++ {
		d := CalculateBackoff(retry)
		if d < prev {
			t.Errorf("backoff decreased at retry %d: %v < %v", retry, d, prev)
		}
		if d > backoffMax {
			t.Errorf("backoff above cap at retry %d: %v", retry, d)
		}
		prev = d
	}
	if CalculateBackoff(100) != backoffMax {
		t.Error("expected cap for large retry")
	}
}
