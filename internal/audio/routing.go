// Package audio manages the ALSA routing configuration that points the
// BlueALSA output at a Bluetooth device.
package audio

import (
	"fmt"
	"os"
	"regexp"
)

var deviceLine = regexp.MustCompile(`device "[^"]*"`)

// RoutingFile is the asound.conf holding a single quoted device address for
// the btmix PCM. Only the pairing engine and the bootstrapper write it.
type RoutingFile struct {
	Path string
}

// SetDevice rewrites the quoted device address in place. A missing routing
// file is not an error; the audio path simply is not installed yet.
func (r RoutingFile) SetDevice(mac string) error {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read routing config %s: %w", r.Path, err)
	}

	updated := deviceLine.ReplaceAll(data, []byte(fmt.Sprintf("device %q", mac)))

	info, err := os.Stat(r.Path)
	if err != nil {
		return fmt.Errorf("failed to stat routing config: %w", err)
	}
	if err := os.WriteFile(r.Path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write routing config %s: %w", r.Path, err)
	}
	return nil
}

// Device returns the address currently routed to, or "" when unset.
func (r RoutingFile) Device() (string, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read routing config %s: %w", r.Path, err)
	}
	match := deviceLine.Find(data)
	if match == nil {
		return "", nil
	}
	// Strip `device "` prefix and trailing quote.
	return string(match[8 : len(match)-1]), nil
}
