package chatlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		StudentNumber: "10101",
		SessionID:     "sess-1",
		Channel:       ChannelHTTP,
		Direction:     DirectionOutbound,
		EventType:     EventUserMessage,
		ContentRaw:    "my hypothesis\r\n\r\n\r\n\r\nis this",
	})

	path := filepath.Join(dir, "10101", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.EventType != EventUserMessage {
		t.Fatalf("unexpected EventType: %q", got.EventType)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be populated")
	}
	if got.Content != "my hypothesis\n\nis this" {
		t.Fatalf("unexpected cleaned content: %q", got.Content)
	}
}

func TestLoggerWritesGlobalFileAfterClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := New(Config{GlobalEnabled: true, GlobalPath: global, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		logger.Log(Event{SessionID: "s", EventType: EventAssistantMessage, ContentRaw: "reply"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after close is a no-op.
	logger.Log(Event{SessionID: "s"})

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 3 {
		t.Fatalf("expected 3 lines, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, anonymous)); !os.IsNotExist(err) {
		t.Fatal("per-session log should not be written when disabled")
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := logger.(noopLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
}

func TestSessionPathSanitises(t *testing.T) {
	got := SessionPath("/logs", "../x y", "")
	want := filepath.Join("/logs", "___x_y", anonymous+".ndjson")
	if got != want {
		t.Fatalf("SessionPath = %q, want %q", got, want)
	}
	if got := SessionPath("/logs", "", "abc"); got != filepath.Join("/logs", anonymous, "abc.ndjson") {
		t.Fatalf("unexpected anonymous path %q", got)
	}
}

func TestCleanForReadabilityStripsNoise(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain data:image/png;base64,iVBORw0KGgo= done\x07"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if strings.Contains(clean, "base64") {
		t.Fatalf("expected image payload to be replaced: %q", clean)
	}
	if clean != "error plain [image] done" {
		t.Fatalf("unexpected cleaned text: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
