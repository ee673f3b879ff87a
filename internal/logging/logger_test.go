package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("watching", map[string]string{"path": "/tmp/migrations"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "watching" {
		t.Fatalf("expected message watching, got %q", entry.Message)
	}
	if entry.Context["path"] != "/tmp/migrations" {
		t.Fatalf("expected context path, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerOutputIsTagged(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelInfo, &out).With(map[string]string{"component": "resync"})

	logger.Error("Undoing migrations...", map[string]string{"count": "2"})

	line := strings.TrimSpace(out.String())
	expected := `[migwatch] level=error msg="Undoing migrations..." component="resync" count="2"`
	if line != expected {
		t.Fatalf("expected %q, got %q", expected, line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn ":  LevelWarning,
		"warning": LevelWarning,
		"error":   LevelError,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatal("expected unknown level to fail")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.With(map[string]string{"component": "resync"}) != nil {
		t.Fatal("expected nil logger to stay nil")
	}
}

func TestUnknownLevelFiltersAsInfo(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, Level("loud"), io.Discard)

	logger.Debug("hidden", nil)
	logger.Info("shown", nil)

	entries := buffer.List()
	if len(entries) != 1 || entries[0].Message != "shown" {
		t.Fatalf("expected only the info entry, got %v", entries)
	}
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	var out bytes.Buffer
	parent := NewLoggerWithOutput(nil, LevelInfo, &out)
	parent.With(map[string]string{"component": "migrator"})

	parent.Info("watching", nil)

	if line := strings.TrimSpace(out.String()); line != `[migwatch] level=info msg="watching"` {
		t.Fatalf("unexpected line %q", line)
	}
}
