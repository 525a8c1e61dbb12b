package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Format: JSONFormat,
		Level:  WarnLevel,
		Output: &buf,
	})

	logger.Debug("debug message", nil)
	logger.Info("info message", nil)
	logger.Warn("warn message", nil)
	logger.Error("error message", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines at warn level, got %d: %q", len(lines), buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Format: JSONFormat,
		Level:  InfoLevel,
		Output: &buf,
	})

	logger.Info("collection started", map[string]interface{}{
		"project": "/tmp/demo",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}

	if entry["message"] != "collection started" {
		t.Errorf("Expected message 'collection started', got %v", entry["message"])
	}

	fields, ok := entry["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected fields object in log entry")
	}
	if fields["project"] != "/tmp/demo" {
		t.Errorf("Expected project field '/tmp/demo', got %v", fields["project"])
	}
}

func TestHumanFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Format: HumanFormat,
		Level:  InfoLevel,
		Output: &buf,
	})

	logger.Warn("server unhealthy", map[string]interface{}{"pid": 42})

	out := buf.String()
	if !strings.Contains(out, "[warn]") {
		t.Errorf("Expected level marker in output, got %q", out)
	}
	if !strings.Contains(out, "pid=42") {
		t.Errorf("Expected field in output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != DebugLevel {
		t.Error("Expected debug level")
	}
	if ParseLevel("bogus") != InfoLevel {
		t.Error("Expected fallback to info level")
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must not write anywhere observable.
	logger := Discard()
	logger.Error("dropped", nil)
}
