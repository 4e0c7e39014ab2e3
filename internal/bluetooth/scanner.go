package bluetooth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
)

// lePrefix marks low-energy advertisement names; the scanner strips it for
// display.
const lePrefix = "LE-"

// SavedDevice provides the last-known device from persisted settings.
type SavedDevice interface {
	BTDevice() (mac, name string)
}

// ScanResult is the outcome of one Poll call.
type ScanResult struct {
	InProgress bool
	Remaining  time.Duration
	Devices    []Device
}

// Scanner runs a timed discovery window and aggregates candidate devices
// from three sources: bonded devices, freshly discovered devices, and the
// saved device from settings.
type Scanner struct {
	runner   execx.Runner
	saved    SavedDevice
	duration time.Duration
	logger   *logger.Logger

	now       func() time.Time
	startedAt time.Time
}

// NewScanner creates a scanner with the given discovery window.
func NewScanner(runner execx.Runner, saved SavedDevice, duration time.Duration, log *logger.Logger) *Scanner {
	return &Scanner{
		runner:   runner,
		saved:    saved,
		duration: duration,
		logger:   log.WithName("scanner"),
		now:      time.Now,
	}
}

// StartDiscovery launches a detached timed `scan on` and starts the window
// clock. Non-blocking; the daemon caches discovered devices, which pairing
// later depends on.
func (s *Scanner) StartDiscovery() {
	s.startedAt = s.now()
	err := s.runner.Start(execx.Command{
		Path: "bluetoothctl",
		Args: []string{"--timeout", strconv.Itoa(int(s.duration.Seconds())), "scan", "on"},
	})
	if err != nil {
		s.logger.Warn("Failed to launch discovery", logger.Err(err))
	}
}

// Poll reports the countdown while the discovery window is open, and the
// merged device list once it has elapsed. An empty list is a valid result;
// the caller may re-scan.
func (s *Scanner) Poll(ctx context.Context) ScanResult {
	elapsed := s.now().Sub(s.startedAt)
	if elapsed < s.duration {
		return ScanResult{InProgress: true, Remaining: s.duration - elapsed}
	}
	return ScanResult{Devices: s.collect(ctx)}
}

// collect merges paired > discovered > saved, de-duplicated by address with
// first occurrence winning.
func (s *Scanner) collect(ctx context.Context) []Device {
	var devices []Device
	seen := make(map[string]bool)

	// Bonded devices are always offered, even when out of range.
	paired, _ := s.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"devices", "Paired"},
		Timeout: 10 * time.Second,
	})
	for _, d := range parseDeviceList(paired) {
		if seen[d.Address] {
			continue
		}
		d.Paired = true
		devices = append(devices, d)
		seen[d.Address] = true
	}

	// Everything the daemon discovered this session.
	all, _ := s.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"devices"},
		Timeout: 10 * time.Second,
	})
	for _, d := range parseDeviceList(all) {
		if seen[d.Address] {
			continue
		}
		d.Name = strings.TrimPrefix(d.Name, lePrefix)
		// Entries named after an address are unnamed BLE noise.
		if d.Name == "" || strings.Contains(d.Name, ":") {
			continue
		}
		devices = append(devices, d)
		seen[d.Address] = true
	}

	// Saved device as a synthetic fallback at the front of the list.
	if savedMAC, savedName := s.saved.BTDevice(); savedMAC != "" && !seen[savedMAC] {
		if savedName == "" {
			savedName = "Saved Device"
		}
		entry := Device{Address: savedMAC, Name: savedName, Saved: true}
		devices = append([]Device{entry}, devices...)
	}

	s.logger.Info("Scan window closed", logger.Int("devices", len(devices)))
	return devices
}
