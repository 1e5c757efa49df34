package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "stobixd", "test", "info", "json")

	logger.WithAccount(0, 3, "0xabc").WithTask("daily_checkin").Info("task claimed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}

	checks := map[string]any{
		"service":  "stobixd",
		"version":  "test",
		"wallet":   "0xabc",
		"task_id":  "daily_checkin",
		"account":  float64(1),
		"accounts": float64(3),
		"msg":      "task claimed",
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("entry[%q] = %v, want %v", key, entry[key], want)
		}
	}
}

func TestWithContext_Cycle(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "stobixd", "test", "info", "text")

	ctx := ContextWithCycle(context.Background(), 4)
	logger.WithContext(ctx).Info("cycle started")

	if !strings.Contains(buf.String(), "cycle=4") {
		t.Errorf("expected cycle=4 in %q", buf.String())
	}
}

func TestLogRequestRetry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "stobixd", "test", "warn", "text")

	logger.LogRequestRetry("https://api.stobix.com/v1/loyalty", 1, 3, 2*time.Second, "bad gateway")

	out := buf.String()
	for _, want := range []string{"level=WARN", "attempt=1", "max_attempts=3", "wait=2s", "message=\"bad gateway\""} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestWithError_Nil(t *testing.T) {
	logger := Discard()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}
