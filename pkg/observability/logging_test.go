package observability_test

import (
	"context"
	"testing"

	"github.com/lancerhq/lancer/internal/testutil"
	"github.com/lancerhq/lancer/pkg/observability"
)

func TestStructuredLoggerEmitsJSON(t *testing.T) {
	buf := testutil.CaptureLogs(t)

	logger := observability.NewStructuredLogger("test")
	logger.Info(context.Background(), "something happened", map[string]interface{}{
		"count": 3,
	})

	entries := testutil.ParseLogEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Severity != observability.LogLevelInfo {
		t.Errorf("severity = %s, want INFO", entry.Severity)
	}
	if entry.Component != "test" {
		t.Errorf("component = %s, want test", entry.Component)
	}
	if entry.Message != "something happened" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Attributes["count"] != float64(3) {
		t.Errorf("attributes = %v", entry.Attributes)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := testutil.CaptureLogs(t)
	observability.SetLogLevel("warn")
	t.Cleanup(func() { observability.SetLogLevel("info") })

	logger := observability.NewStructuredLogger("test")
	logger.Debug(context.Background(), "dropped")
	logger.Info(context.Background(), "dropped too")
	logger.Warn(context.Background(), "kept")

	entries := testutil.ParseLogEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the warning", len(entries))
	}
	if entries[0].Message != "kept" {
		t.Errorf("message = %q, want kept", entries[0].Message)
	}
}

func TestErrorLoggingIncludesError(t *testing.T) {
	buf := testutil.CaptureLogs(t)

	logger := observability.NewStructuredLogger("test")
	logger.Error(context.Background(), "operation failed", context.DeadlineExceeded)

	entries := testutil.ParseLogEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Attributes["error"] != context.DeadlineExceeded.Error() {
		t.Errorf("error attribute = %v", entries[0].Attributes["error"])
	}
}
