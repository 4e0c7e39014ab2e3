package bluetooth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
)

// ErrNoAdapter means no usable USB controller was found. Recovery requires
// hardware action (plugging in a dongle), not a retry loop.
var ErrNoAdapter = errors.New("no usable USB Bluetooth adapter found")

const (
	usbBusMarker = "Bus: USB"

	// The built-in MT7961 combo chip enumerates fine but its ACL data
	// path is broken for audio, so it must never be selected.
	excludedChipset = "MediaTek"
)

// Selector enumerates host controllers and picks the first usable USB one.
type Selector struct {
	runner     execx.Runner
	candidates []string
	logger     *logger.Logger
}

// NewSelector creates a selector probing the given controller ids in order.
func NewSelector(runner execx.Runner, candidates []string, log *logger.Logger) *Selector {
	return &Selector{
		runner:     runner,
		candidates: candidates,
		logger:     log.WithName("adapter"),
	}
}

// FindAdapter probes each candidate controller with hciconfig and returns
// the first one on a USB bus that is not the excluded chipset. hciconfig
// works without dbus or bluetoothd, so this runs before any service is up.
func (s *Selector) FindAdapter(ctx context.Context) (Adapter, error) {
	for _, id := range s.candidates {
		info, err := s.runner.Run(ctx, execx.Command{
			Path:    "hciconfig",
			Args:    []string{"-a", id},
			Timeout: 5 * time.Second,
		})
		if err != nil && info == "" {
			continue
		}
		if !strings.Contains(info, usbBusMarker) {
			continue
		}
		if strings.Contains(info, excludedChipset) {
			s.logger.Debug("Skipping excluded chipset", logger.String("id", id))
			continue
		}

		adapter := Adapter{
			ID:      id,
			Address: extractAddress(info),
			Index:   adapterIndex(id),
		}
		s.logger.Info("Selected adapter",
			logger.String("id", adapter.ID),
			logger.String("address", adapter.Address),
		)
		return adapter, nil
	}
	return Adapter{}, ErrNoAdapter
}

// extractAddress finds the controller address on the "BD Address" line of
// hciconfig output, following the "Address:" token.
func extractAddress(info string) string {
	for _, line := range strings.Split(info, "\n") {
		if !strings.Contains(line, "BD Address") {
			continue
		}
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "Address:" && i+1 < len(fields) {
				return fields[i+1]
			}
		}
		return ""
	}
	return ""
}

// adapterIndex maps "hci0" to 0. Unknown forms map to 0.
func adapterIndex(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
	if err != nil {
		return 0
	}
	return n
}
