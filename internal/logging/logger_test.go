package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger_File(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Options{Dir: dir, Level: "debug", Rotation: DefaultRotationConfig()})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("loaded", "path", "team.yaml")
	_ = logger.Close()

	entries := readEntries(t, filepath.Join(dir, LogFileName))
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["msg"] != "loaded" || entries[0]["path"] != "team.yaml" {
		t.Errorf("entry = %v", entries[0])
	}
}

func TestNewLogger_ConsoleNonTTY(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("non-terminal console output should be JSON, got %q", buf.String())
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close on console logger failed: %v", err)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"DEBUG", []string{"d", "i", "w", "e"}},
		{"info", []string{"i", "w", "e"}},
		{"WARN", []string{"w", "e"}},
		{"error", []string{"e"}},
		{"bogus", []string{"i", "w", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, _ := NewLogger(Options{Level: tt.level, Console: &buf})
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			var got []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]any
				if err := json.Unmarshal([]byte(line), &entry); err == nil {
					got = append(got, entry["msg"].(string))
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("logged %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	base := NewFromHandler(slog.NewJSONHandler(&buf, nil))

	base.WithTeam("Writers", "round_robin").WithRun("run-42").WithComponent("runner").Info("run started", "task", "hi")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := map[string]string{
		"team":      "Writers",
		"provider":  "round_robin",
		"run_id":    "run-42",
		"component": "runner",
		"task":      "hi",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := NewFromHandler(slog.NewJSONHandler(&buf, nil))

	if base.With() != base {
		t.Error("With() with no args should return the receiver")
	}

	child := base.With("attempt", 2, 99, "ignored-non-string-key")
	child.Info("retry")
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"attempt":2`) {
		t.Errorf("child entry missing attempt: %s", lines[0])
	}
	if strings.Contains(lines[1], "attempt") {
		t.Errorf("parent entry picked up child attrs: %s", lines[1])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.WithRun("r").Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"Info", LevelInfo},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"trace", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevels(t *testing.T) {
	if got := ValidLevels(); len(got) != 4 {
		t.Errorf("ValidLevels() = %v", got)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Options{Dir: dir, Level: "info", Rotation: DefaultRotationConfig()})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := logger.WithRun("run")
			for j := 0; j < 20; j++ {
				l.Info("event", "worker", n, "seq", j)
			}
		}(i)
	}
	wg.Wait()
	_ = logger.Close()

	if got := len(readEntries(t, filepath.Join(dir, LogFileName))); got != 200 {
		t.Errorf("got %d entries, want 200", got)
	}
}
