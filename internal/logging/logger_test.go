package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("nonsense").Level(); got != slog.LevelInfo {
		t.Fatalf("expected info, got %s", got)
	}
	if got := parseLevel("debug").Level(); got != slog.LevelDebug {
		t.Fatalf("expected debug, got %s", got)
	}
}

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "note_id", "n1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "note_id=n1") {
		t.Fatalf("expected warn line with attrs, got %s", out)
	}
}

func TestDiscardIsQuiet(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("discard logger should not enable warn")
	}
}
