package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestConfigureOnce(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "gamelink-test", Version: "test"})

	// A second Configure must not replace the writer.
	Configure(Config{Service: "other"})

	logger := WithComponent("unit")
	logger.Info().Str("event", "test.emit").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "gamelink-test" {
		t.Errorf("expected service gamelink-test, got %v", entry["service"])
	}
	if entry["component"] != "unit" {
		t.Errorf("expected component unit, got %v", entry["component"])
	}
	if entry["event"] != "test.emit" {
		t.Errorf("expected event test.emit, got %v", entry["event"])
	}
}
