package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid JSON record %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := NewLogger(Options{Dir: dir, Level: LevelDebug})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logger.Info("hello")

		if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("writes to stderr without directory", func(t *testing.T) {
		logger, err := NewLogger(Options{Level: LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("expected no closer for stderr logger")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelWarn, nil)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	recs := decodeLines(t, buf.Bytes())
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["msg"] != "w" || recs[1]["msg"] != "e" {
		t.Errorf("unexpected messages: %v, %v", recs[0]["msg"], recs[1]["msg"])
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, LevelDebug, nil)

	base.WithRun("run-1").WithAttempt(2).WithStage("script").WithComponent("pipeline").
		Info("stage done", "elapsed_ms", 12)

	recs := decodeLines(t, buf.Bytes())
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	checks := map[string]any{
		"run_id":     "run-1",
		"attempt":    float64(2),
		"stage":      "script",
		"component":  "pipeline",
		"elapsed_ms": float64(12),
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestChildDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, LevelDebug, nil)
	_ = base.WithRun("child")

	base.Info("parent")

	recs := decodeLines(t, buf.Bytes())
	if _, ok := recs[0]["run_id"]; ok {
		t.Error("parent record carries child attribute")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelDebug, nil)

	if logger.With() != logger {
		t.Error("With() without args should return the receiver")
	}

	logger.With("topic", "History", 42, "skipped").Info("brief")

	recs := decodeLines(t, buf.Bytes())
	if recs[0]["topic"] != "History" {
		t.Errorf("topic = %v, want History", recs[0]["topic"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Debug("x")
	logger.Error("y")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidLevels(t *testing.T) {
	if got := len(ValidLevels()); got != 4 {
		t.Errorf("len(ValidLevels()) = %d, want 4", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, err := NewLogger(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Options{Dir: dir, Level: LevelDebug})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := logger.WithAttempt(n)
			for j := 0; j < 20; j++ {
				l.Info("tick", "j", j)
			}
		}(i)
	}
	wg.Wait()
	_ = logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := len(decodeLines(t, data)); got != 200 {
		t.Errorf("got %d records, want 200", got)
	}
}
