package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		level    Level
		logAt    Level
		expected bool
	}{
		{"Debug at debug level", DebugLevel, DebugLevel, true},
		{"Debug at info level", InfoLevel, DebugLevel, false},
		{"Info at info level", InfoLevel, InfoLevel, true},
		{"Warn at error level", ErrorLevel, WarnLevel, false},
		{"Error at info level", InfoLevel, ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: tt.level, Output: &buf})
			l.log(tt.logAt, "hello", nil)
			got := buf.Len() > 0
			if got != tt.expected {
				t.Errorf("expected output=%v, got %v", tt.expected, got)
			}
		})
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, Output: &buf}).WithName("engine")
	l.Info("connected", String("mac", "AA:BB:CC:DD:EE:FF"), Int("attempt", 2))

	out := buf.String()
	for _, want := range []string{"INFO", "[engine]", "connected", "mac=AA:BB:CC:DD:EE:FF", "attempt=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, Format: JSONFormat, Output: &buf}).WithName("scanner")
	l.Info("scan done", Int("devices", 3), Bool("rescan", false))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level INFO, got %v", entry["level"])
	}
	if entry["logger"] != "scanner" {
		t.Errorf("expected logger scanner, got %v", entry["logger"])
	}
	if entry["message"] != "scan done" {
		t.Errorf("expected message, got %v", entry["message"])
	}
	if entry["devices"] != float64(3) {
		t.Errorf("expected devices=3, got %v", entry["devices"])
	}
}

func TestWithFieldsInherited(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: InfoLevel, Output: &buf})
	child := base.With(String("adapter", "hci0"))
	child.Info("up")

	if !strings.Contains(buf.String(), "adapter=hci0") {
		t.Errorf("expected inherited field, got %q", buf.String())
	}

	// Parent must not carry the child's fields.
	buf.Reset()
	base.Info("up")
	if strings.Contains(buf.String(), "adapter=hci0") {
		t.Errorf("parent logger leaked child fields: %q", buf.String())
	}
}

func TestFieldHelpers(t *testing.T) {
	if f := Duration("elapsed", 3*time.Second); f.Value != "3s" {
		t.Errorf("Duration field: got %v", f.Value)
	}
	if f := Err(nil); f.Value != nil {
		t.Errorf("Err(nil) field: got %v", f.Value)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
