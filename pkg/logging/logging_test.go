package logging

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelError},
		{"  info  ", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestServiceHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("podctl", slog.LevelDebug, &buf))

	logger.Info("pairing complete")

	re := regexp.MustCompile(
		`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[+-]\d{2}:\d{2} podctl \[INFO\] [^ ]*: pairing complete\n$`,
	)
	if !re.MatchString(buf.String()) {
		t.Errorf("log line does not match expected format:\n  got: %q", buf.String())
	}
}

func TestServiceHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("podctl", slog.LevelWarn, &buf))

	logger.Debug("should not appear")
	logger.Info("should not appear")
	logger.Warn("should appear")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[WARN]") {
		t.Errorf("expected WARN level, got: %s", lines[0])
	}
}

func TestServiceHandlerPromotesPodAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("podctl", slog.LevelDebug, &buf))

	logger.Info("nonce resync",
		slog.String("pod", "pod-123"),
		slog.String("opcode", "status"),
	)

	re := regexp.MustCompile(`\[INFO\] [^ ]*: pod=pod-123 nonce resync`)
	if !re.MatchString(buf.String()) {
		t.Errorf("expected pod field before message, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "opcode=status") {
		t.Errorf("expected opcode=status, got: %s", buf.String())
	}
}

func TestServiceHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("podctl", slog.LevelDebug, &buf)).
		WithGroup("transport").With(slog.String("endpoint", "radio-gateway:9443"))

	logger.Info("connected")

	if !strings.Contains(buf.String(), "transport.endpoint=radio-gateway:9443") {
		t.Errorf("expected grouped attribute, got: %s", buf.String())
	}
}

func TestServiceHandlerEnabled(t *testing.T) {
	h := NewServiceHandler("podctl", slog.LevelWarn, nil)
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelDebug) {
		t.Error("DEBUG should be disabled when level is WARN")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Error("ERROR should be enabled when level is WARN")
	}
}

func TestCallerSource(t *testing.T) {
	if src := callerSource(0); src != "unknown" {
		t.Errorf("expected 'unknown' for zero PC, got: %s", src)
	}
}
