package execx

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	r := NewRunner()
	out, err := r.Run(context.Background(), Command{
		Path: "echo",
		Args: []string{"hello", "world"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Errorf("expected trimmed output, got %q", out)
	}
}

func TestRunReturnsOutputOnFailure(t *testing.T) {
	r := NewRunner()
	out, err := r.Run(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "echo Failed to pair; exit 1"},
	})
	if err == nil {
		t.Fatal("expected non-zero exit error")
	}
	if !strings.Contains(out, "Failed to pair") {
		t.Errorf("expected output alongside error, got %q", out)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner()
	start := time.Now()
	_, err := r.Run(context.Background(), Command{
		Path:    "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not honored, took %v", elapsed)
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Path: "bluetoothctl", Args: []string{"pair", "AA:BB:CC:DD:EE:FF"}}
	if got := c.String(); got != "bluetoothctl pair AA:BB:CC:DD:EE:FF" {
		t.Errorf("unexpected rendering: %q", got)
	}
}

func TestStartDetaches(t *testing.T) {
	r := NewRunner()
	if err := r.Start(Command{Path: "sleep", Args: []string{"0.1"}}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}
