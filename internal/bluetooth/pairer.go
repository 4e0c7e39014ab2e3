package bluetooth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pageramp/pageramp/internal/execx"
)

// PairingAttemptResult is the immediate result of a single pairing call.
// It is advisory only; the engine re-queries the daemon before trusting it.
type PairingAttemptResult struct {
	Succeeded   bool
	AuthFailure bool
	RawOutput   string
}

// Pairer is the swappable pairing policy. Two strategies exist in the
// field: daemon-level pairing through bluetoothctl, and low-level pairing
// through the management interface. Which one works depends on the adapter
// chipset, so the choice is configuration, not code.
type Pairer interface {
	Pair(ctx context.Context, adapter Adapter, mac string) PairingAttemptResult
}

// CtlPairer pairs through the daemon (`bluetoothctl pair`). Default.
type CtlPairer struct {
	runner execx.Runner
}

// NewCtlPairer creates the bluetoothctl-based pairer.
func NewCtlPairer(runner execx.Runner) *CtlPairer {
	return &CtlPairer{runner: runner}
}

func (p *CtlPairer) Pair(ctx context.Context, _ Adapter, mac string) PairingAttemptResult {
	out, _ := p.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"pair", mac},
		Timeout: 20 * time.Second,
	})
	return PairingAttemptResult{
		Succeeded: strings.Contains(out, "Pairing successful") ||
			strings.Contains(out, "Already Paired"),
		AuthFailure: isAuthFailure(out),
		RawOutput:   out,
	}
}

// MgmtPairer pairs through the kernel management interface (`btmgmt pair`),
// bypassing the daemon's agent machinery. Needed on some adapters whose
// firmware mishandles daemon-initiated bonding.
type MgmtPairer struct {
	runner execx.Runner
}

// NewMgmtPairer creates the btmgmt-based pairer.
func NewMgmtPairer(runner execx.Runner) *MgmtPairer {
	return &MgmtPairer{runner: runner}
}

func (p *MgmtPairer) Pair(ctx context.Context, adapter Adapter, mac string) PairingAttemptResult {
	out, _ := p.runner.Run(ctx, execx.Command{
		Path: "btmgmt",
		Args: []string{
			"--index", strconv.Itoa(adapter.Index),
			"pair", "-c", "3", "-t", "0", mac,
		},
		Timeout: 20 * time.Second,
	})
	return PairingAttemptResult{
		Succeeded: strings.Contains(out, "Paired with") ||
			strings.Contains(out, "status 0x00"),
		AuthFailure: isAuthFailure(out),
		RawOutput:   out,
	}
}
