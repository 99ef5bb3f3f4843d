package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestHandler returns a handler writing to buf at the given level.
func newTestHandler(buf *bytes.Buffer, level slog.Level) (*Handler, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level)
	return NewHandler(buf, lv), lv
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"Error", LevelError},
		{"fail", LevelFail},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelInfo)
	log := slog.New(h)

	log.Info("presence updated", "track", "Song", "artist", "Artist")

	out := buf.String()
	if !strings.Contains(out, "[INFO] presence updated") {
		t.Errorf("missing level/message: %q", out)
	}
	if !strings.Contains(out, "track=Song, artist=Artist") {
		t.Errorf("missing attributes: %q", out)
	}
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelInfo)
	log := slog.New(h)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record emitted at info level: %q", buf.String())
	}
}

func TestHandler_RuntimeLevelChange(t *testing.T) {
	var buf bytes.Buffer
	h, lv := newTestHandler(&buf, LevelInfo)
	log := slog.New(h)

	log.Debug("before toggle")
	lv.Set(LevelDebug)
	log.Debug("after toggle")

	out := buf.String()
	if strings.Contains(out, "before toggle") {
		t.Error("debug record emitted before toggle")
	}
	if !strings.Contains(out, "after toggle") {
		t.Error("debug record suppressed after toggle")
	}
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelInfo)
	log := slog.New(h).With("component", "poller").WithGroup("lastfm")

	log.Info("poll complete", "user", "alice")

	out := buf.String()
	if !strings.Contains(out, "lastfm.component=poller") {
		t.Errorf("missing grouped pre-applied attr: %q", out)
	}
	if !strings.Contains(out, "lastfm.user=alice") {
		t.Errorf("missing grouped record attr: %q", out)
	}
}

func TestCustomLevelNames(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelTrace)
	log := slog.New(h)

	Trace(log, "tracing")
	Fail(log, "failing")

	out := buf.String()
	if !strings.Contains(out, "[TRACE] tracing") {
		t.Errorf("missing TRACE record: %q", out)
	}
	if !strings.Contains(out, "[FAIL] failing") {
		t.Errorf("missing FAIL record: %q", out)
	}
}

func TestHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelWarn)

	if h.Enabled(context.Background(), LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.log")

	log, _, closer, err := NewLogger(path, LevelInfo, 1)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hello from test")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestReadTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")

	lines := []string{"one", "two", "three", "four", "five"}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadTail(path, 3)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	want := "three\nfour\nfive"
	if got != want {
		t.Errorf("ReadTail = %q, want %q", got, want)
	}
}

func TestReadTail_FewerLinesThanRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte("only\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadTail(path, 10)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if got != "only" {
		t.Errorf("ReadTail = %q, want %q", got, "only")
	}
}

func TestHandler_Timestamp(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newTestHandler(&buf, LevelInfo)

	r := slog.NewRecord(time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC), LevelInfo, "pi day", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "2026-03-14T15:09:26.535Z [INFO] pi day") {
		t.Errorf("unexpected format: %q", buf.String())
	}
}
