package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerJSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}, "worker")

	logger.Info("dropped")
	logger.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above warn, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "kept" || record["component"] != "worker" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	for _, raw := range []string{"", "INFO", " debug ", "warning", "error"} {
		if _, ok := parseLevel(raw); !ok {
			t.Fatalf("expected %q to parse", raw)
		}
	}
	if _, ok := parseLevel("verbose"); ok {
		t.Fatal("expected unknown level to fail")
	}
}
