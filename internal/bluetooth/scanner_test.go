package bluetooth

import (
	"context"
	"testing"
	"time"

	"github.com/pageramp/pageramp/internal/logger"
)

type fakeSaved struct {
	mac, name string
}

func (f fakeSaved) BTDevice() (string, string) { return f.mac, f.name }

func newTestScanner(runner *fakeRunner, saved fakeSaved) (*Scanner, *time.Time) {
	s := NewScanner(runner, saved, 12*time.Second, logger.Discard())
	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestScannerCountdown(t *testing.T) {
	runner := newFakeRunner()
	s, clock := newTestScanner(runner, fakeSaved{})

	s.StartDiscovery()
	if len(runner.startCalls) != 1 {
		t.Fatalf("expected one detached scan, got %v", runner.startCalls)
	}
	if runner.startCalls[0] != "bluetoothctl --timeout 12 scan on" {
		t.Errorf("unexpected scan command: %s", runner.startCalls[0])
	}

	res := s.Poll(context.Background())
	if !res.InProgress {
		t.Fatal("expected scan in progress at t=0")
	}
	if res.Remaining != 12*time.Second {
		t.Errorf("Remaining = %v, want 12s", res.Remaining)
	}

	*clock = clock.Add(5 * time.Second)
	res = s.Poll(context.Background())
	if !res.InProgress || res.Remaining != 7*time.Second {
		t.Errorf("at t=5s got %+v, want in progress with 7s remaining", res)
	}
}

func TestScannerMergePrecedence(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("bluetoothctl devices Paired",
		"Device AA:BB:CC:DD:EE:FF JBL Flip 5\n")
	runner.respond("bluetoothctl devices",
		"Device AA:BB:CC:DD:EE:FF JBL Flip 5\n"+
			"Device 11:22:33:44:55:66 LE-Buds Pro\n"+
			"Device 22:33:44:55:66:77 33:44:55:66:77:88\n")
	s, clock := newTestScanner(runner, fakeSaved{mac: "55:66:77:88:99:AA", name: "Old Speaker"})

	s.StartDiscovery()
	*clock = clock.Add(13 * time.Second)
	res := s.Poll(context.Background())
	if res.InProgress {
		t.Fatal("scan window should have elapsed")
	}

	if len(res.Devices) != 3 {
		t.Fatalf("expected 3 devices, got %d: %+v", len(res.Devices), res.Devices)
	}
	// Saved synthetic entry goes to the front.
	if !res.Devices[0].Saved || res.Devices[0].Address != "55:66:77:88:99:AA" {
		t.Errorf("expected saved entry first, got %+v", res.Devices[0])
	}
	if !res.Devices[1].Paired || res.Devices[1].Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("expected paired entry second, got %+v", res.Devices[1])
	}
	// LE prefix stripped, address-named entry dropped.
	if res.Devices[2].Name != "Buds Pro" {
		t.Errorf("expected LE prefix stripped, got %q", res.Devices[2].Name)
	}
}

func TestScannerNoDuplicateAddresses(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("bluetoothctl devices Paired",
		"Device AA:BB:CC:DD:EE:FF Speaker\n")
	runner.respond("bluetoothctl devices",
		"Device AA:BB:CC:DD:EE:FF Speaker\n")
	s, clock := newTestScanner(runner, fakeSaved{})

	s.StartDiscovery()
	*clock = clock.Add(12 * time.Second)
	res := s.Poll(context.Background())
	if len(res.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d: %+v", len(res.Devices), res.Devices)
	}
	if !res.Devices[0].Paired {
		t.Error("paired tag should win over discovered")
	}
}

func TestScannerSavedEqualsDiscovered(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("bluetoothctl devices",
		"Device 11:22:33:44:55:66 Speaker\n")
	s, clock := newTestScanner(runner, fakeSaved{mac: "11:22:33:44:55:66", name: "Speaker"})

	s.StartDiscovery()
	*clock = clock.Add(12 * time.Second)
	res := s.Poll(context.Background())
	if len(res.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d: %+v", len(res.Devices), res.Devices)
	}
	if res.Devices[0].Saved {
		t.Error("discovered entry must not be duplicated as saved")
	}
}

func TestScannerEmptyResult(t *testing.T) {
	runner := newFakeRunner()
	s, clock := newTestScanner(runner, fakeSaved{})

	s.StartDiscovery()
	*clock = clock.Add(12 * time.Second)
	res := s.Poll(context.Background())
	if res.InProgress {
		t.Fatal("scan window should have elapsed")
	}
	if len(res.Devices) != 0 {
		t.Errorf("expected empty device list, got %+v", res.Devices)
	}
}

func TestScannerSavedFallbackName(t *testing.T) {
	runner := newFakeRunner()
	s, clock := newTestScanner(runner, fakeSaved{mac: "11:22:33:44:55:66"})

	s.StartDiscovery()
	*clock = clock.Add(12 * time.Second)
	res := s.Poll(context.Background())
	if len(res.Devices) != 1 || res.Devices[0].Name != "Saved Device" {
		t.Errorf("expected saved fallback name, got %+v", res.Devices)
	}
}
