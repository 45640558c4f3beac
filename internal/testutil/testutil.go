// Package testutil provides shared helpers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/lancerhq/lancer/pkg/observability"
)

// CaptureLogs redirects structured log output for the duration of a test
// and returns the buffer collecting it.
func CaptureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	observability.SetLogOutput(buf)
	t.Cleanup(func() {
		observability.SetLogOutput(os.Stdout)
	})
	return buf
}

// ParseLogEntries decodes every JSON log line in buf.
func ParseLogEntries(t *testing.T, buf *bytes.Buffer) []observability.LogEntry {
	t.Helper()
	var entries []observability.LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry observability.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

// RequireEnv skips the test unless the environment variable is set. Used
// by tests that hit real upstream services.
func RequireEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// TempConfigFile writes content to a temporary YAML file and returns its
// path.
func TempConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := fmt.Sprintf("%s/config.yaml", dir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
