package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fabula/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "engine.log")

	logger, err := New(Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("recording finalized",
		slog.String(FieldComponent, "recording"),
		slog.String(FieldRecordingID, "rec-1"),
	)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "recording: recording finalized") {
		t.Fatalf("expected component-prefixed message, got %q", out)
	}
	if !strings.Contains(out, "recording_id=rec-1") {
		t.Fatalf("expected recording_id attr, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWithContextAttachesFields(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ctx.log")
	logger, err := New(Options{Level: "info", Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := services.WithSessionID(context.Background(), "sess-9")
	ctx = services.WithPathKey(ctx, "intro/forest")

	WithContext(ctx, logger).Info("matched path")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "session_id=sess-9") {
		t.Fatalf("expected session id field, got %q", out)
	}
	if !strings.Contains(out, "path_key=intro/forest") {
		t.Fatalf("expected path key field, got %q", out)
	}
}
