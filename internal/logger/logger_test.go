package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	if got := New(Options{Level: "warn"}).GetLevel(); got != logrus.WarnLevel {
		t.Fatalf("expected warn, got %s", got)
	}
	if got := New(Options{Level: "bogus"}).GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
	if got := New(Options{Level: "error", Debug: true}).GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("debug flag should force debug, got %s", got)
	}
}

func TestJSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "json", Output: &buf})
	Component(l, "dataflows").Info("loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if entry["component"] != "dataflows" || entry["msg"] != "loaded" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
