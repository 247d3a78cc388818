package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTranscriptLoggerWritesPerUserNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewTranscriptLogger(TranscriptConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewTranscriptLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	c := NewController(ControllerConfig{
		UserID:     "anon_1",
		Completer:  &recordingCompleter{reply: "Use SPF daily."},
		Transcript: logger,
	})
	c.Ask(context.Background(), "Do I need sunscreen?")

	path := filepath.Join(dir, "anon_1.ndjson")
	lines := waitForLines(t, path, 2)

	var q, a TranscriptEntry
	if err := json.Unmarshal([]byte(lines[0]), &q); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &a); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if q.Kind != KindQuestion || q.Content != "Do I need sunscreen?" || q.UserID != "anon_1" {
		t.Fatalf("unexpected question entry: %+v", q)
	}
	if a.Kind != KindAnswer || a.Content != "Use SPF daily." || a.Failed {
		t.Fatalf("unexpected answer entry: %+v", a)
	}
}

func TestTranscriptLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()
	logger, err := NewTranscriptLogger(TranscriptConfig{Enabled: false, Dir: "/nonexistent"}, nil)
	if err != nil {
		t.Fatalf("NewTranscriptLogger failed: %v", err)
	}
	logger.Record(TranscriptEntry{Kind: KindQuestion})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestTranscriptFileNameSanitizes(t *testing.T) {
	t.Parallel()
	if got := transcriptFileName("../etc/passwd"); got != "___etc_passwd.ndjson" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := transcriptFileName(""); got != "unknown.ndjson" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func waitForLines(t *testing.T, path string, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) >= n && lines[0] != "" {
				return lines
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines in %s", n, path)
	return nil
}
