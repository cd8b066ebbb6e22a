package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/taskwatch/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true, BufferSize: 16, Workers: 1}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	if got := SessionID(ctx); got != "" {
		t.Errorf("expected empty session ID, got %q", got)
	}
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	ctx = WithSessionID(WithRequestID(ctx, "req-123"), "sess-1")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := SessionID(ctx); got != "sess-1" {
		t.Errorf("expected sess-1, got %q", got)
	}
}

func TestContextHandlerAddsSessionID(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(&buf, config.Logging{Level: "info", Service: "taskwatch"})
	defer closer.Close()

	ctx := WithSessionID(context.Background(), "sess-42")
	l.InfoContext(ctx, "stream open", "task_id", "t1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if rec["session_id"] != "sess-42" {
		t.Errorf("expected session_id sess-42, got %v", rec["session_id"])
	}
	if rec["service"] != "taskwatch" {
		t.Errorf("expected service taskwatch, got %v", rec["service"])
	}
	if _, ok := rec["request_id"]; ok {
		t.Error("request_id must be absent when not in context")
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(&buf, config.Logging{Level: "warn", Service: "taskwatch"})
	defer closer.Close()

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %s", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn must be written at warn level")
	}
}
