package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Fatalf("fallback component = %q, want unknown", got.Component())
	}

	logger := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)})
	if got := FromContext(NewContext(context.Background(), logger)); got != logger {
		t.Fatal("logger not carried by context")
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})})
	sl := NewStructuredLogger(logger)
	r := httptest.NewRequest("GET", "/api/summary?year=2024", nil)

	sl.LogHTTPEnd(context.Background(), r, 200, 3, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, 404, 3, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, 502, 3, "10.0.0.1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, level := range []string{"level=INFO", "level=WARN", "level=ERROR"} {
		if !strings.Contains(lines[i], level) {
			t.Errorf("line %d = %q, want %s", i, lines[i], level)
		}
	}
}
