// Package bluetooth brings up an audio link to a wireless speaker or
// headset: adapter selection, service bootstrap, discovery, and the
// pair/trust/connect protocol, orchestrated by a frame-driven wizard.
//
// The package drives system services (dbus-daemon, bluetoothd, bluealsad)
// and management tools (hciconfig, bluetoothctl, btmgmt) as subprocesses.
// Tool output for "success" is not always reliable on consumer adapters,
// so bond state is re-queried from the daemon after every mutating call.
package bluetooth

import (
	"regexp"
	"strings"
)

// Adapter is a local Bluetooth controller.
type Adapter struct {
	ID      string // e.g. "hci0"
	Address string
	Index   int
}

// Device is a remote audio device candidate. Identity is the address; names
// vary across scans.
type Device struct {
	Address string
	Name    string
	Paired  bool // bonded according to the daemon
	Saved   bool // synthetic entry from saved settings
}

// Label renders the device for a selection list.
func (d Device) Label() string {
	switch {
	case d.Paired:
		return d.Name + " [paired]"
	case d.Saved:
		return d.Name + " [saved]"
	default:
		return d.Name
	}
}

// BondState is the daemon's current notion of a device. It is derived on
// demand and never cached across protocol steps.
type BondState struct {
	Paired    bool
	Connected bool
}

var macPattern = regexp.MustCompile(`^(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// ValidAddress reports whether s looks like a Bluetooth device address.
// Addresses reach us from scan output and saved settings, so they are
// validated before being handed to management tools.
func ValidAddress(s string) bool {
	return macPattern.MatchString(s)
}

// parseBondState extracts paired/connected flags from `bluetoothctl info`
// output.
func parseBondState(info string) BondState {
	return BondState{
		Paired:    strings.Contains(info, "Paired: yes"),
		Connected: strings.Contains(info, "Connected: yes"),
	}
}

// parseDeviceList parses `bluetoothctl devices` output lines of the form
// "Device AA:BB:CC:DD:EE:FF Some Name".
func parseDeviceList(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			continue
		}
		addr, name := parts[1], strings.TrimSpace(parts[2])
		if !ValidAddress(addr) {
			continue
		}
		devices = append(devices, Device{Address: addr, Name: name})
	}
	return devices
}

// authFailureMarkers are the substrings and HCI status codes that identify
// an authentication failure in connect/pair output. A stale bond shows up
// as one of these.
var authFailureMarkers = []string{
	"key-missing",
	"AuthenticationFailed",
	"status 0x05",
	"status 0x06",
}

// isAuthFailure classifies tool output as an authentication failure.
func isAuthFailure(output string) bool {
	for _, marker := range authFailureMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(output), "auth failed")
}
