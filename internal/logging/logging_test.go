package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{}, &buf)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info", logger.GetLevel())
	}

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug message leaked at info level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("info message missing: %q", out)
	}
}

func TestNew_ParsesLevelAndDebugOverrides(t *testing.T) {
	logger, err := New(Config{Level: "warn"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %v, want warn", logger.GetLevel())
	}

	logger, err = New(Config{Level: "warn", Debug: true}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %v, want debug override", logger.GetLevel())
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "shouting"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("New returned nil error, want parse error")
	}
}
