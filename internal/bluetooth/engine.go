package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pageramp/pageramp/internal/audio"
	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/settings"
)

// Terminal outcomes of a connection attempt. Both are user-retryable from
// the wizard's error screen.
var (
	ErrPairingFailed = errors.New("pairing failed after retries")
	ErrConnectFailed = errors.New("connection failed after retries")
)

const (
	pairAttempts    = 3
	connectAttempts = 3

	connectTimeout    = 15 * time.Second
	disconnectTimeout = 3 * time.Second
	removeTimeout     = 5 * time.Second
	trustTimeout      = 5 * time.Second

	// Settle times observed to matter on consumer dongles.
	connectSettle  = 3 * time.Second
	removeSettle   = time.Second
	trustSettle    = 500 * time.Millisecond
	pairVerifyWait = 2 * time.Second
	connectBackoff = 2 * time.Second

	rediscoverWindow = 5 * time.Second
)

// Stage identifies which protocol phase the engine is in, for status
// reporting while a Connect call is blocking the frame loop.
type Stage int

const (
	StagePairing Stage = iota
	StageConnecting
)

// Engine executes the bonding and connection protocol against one device.
//
// It handles three scenarios without requiring a factory reset:
//
//  1. already paired + keys valid: connect directly (fast path)
//  2. already paired + keys stale: remove bond, re-pair, connect
//  3. new device: pair, trust, connect
//
// Every mutating call is followed by a bond-state re-query; the daemon's
// own notion of paired/connected is the only truth the engine acts on.
type Engine struct {
	runner  execx.Runner
	pairer  Pairer
	prober  StateProber
	boot    *Bootstrapper
	routing audio.RoutingFile
	store   *settings.Store
	logger  *logger.Logger

	// Notify, when set, receives phase changes so the caller can update
	// status text between protocol steps.
	Notify func(stage Stage, status string)

	sleep func(time.Duration)
}

// NewEngine creates an engine.
func NewEngine(runner execx.Runner, pairer Pairer, prober StateProber, boot *Bootstrapper,
	routing audio.RoutingFile, store *settings.Store, log *logger.Logger) *Engine {
	return &Engine{
		runner:  runner,
		pairer:  pairer,
		prober:  prober,
		boot:    boot,
		routing: routing,
		store:   store,
		logger:  log.WithName("engine"),
		sleep:   time.Sleep,
	}
}

// Connect runs the full protocol synchronously. It returns nil on success,
// ErrPairingFailed or ErrConnectFailed when the retry budget is exhausted.
// The saved device in settings is updated only on success.
func (e *Engine) Connect(ctx context.Context, adapter Adapter, dev Device) error {
	if !ValidAddress(dev.Address) {
		return fmt.Errorf("invalid device address %q", dev.Address)
	}
	log := e.logger.With(logger.String("mac", dev.Address), logger.String("name", dev.Name))
	log.Info("Connection attempt started")

	// Prepare the audio path early: adapter selected, routing file
	// pointed at the device, relay daemon alive.
	if adapter.Address != "" {
		e.runCtl(ctx, 10*time.Second, "select", adapter.Address)
	}
	if err := e.routing.SetDevice(dev.Address); err != nil {
		log.Warn("Failed to update audio routing", logger.Err(err))
	}
	e.boot.EnsureBluealsad(ctx, adapter)

	state := e.bondState(ctx, dev.Address)
	log.Debug("Initial bond state",
		logger.Bool("paired", state.Paired), logger.Bool("connected", state.Connected))

	if state.Connected {
		e.finish(dev, log)
		return nil
	}

	if state.Paired {
		// Fast path: bonded, just connect.
		e.notify(StageConnecting, fmt.Sprintf("Connecting to %s...", dev.Name))
		connected, authFail := e.tryConnect(ctx, dev.Address)
		if connected {
			e.finish(dev, log)
			return nil
		}
		// The bond exists but no longer authenticates. Clear it and
		// fall through to fresh pairing.
		log.Info("Stale bond detected, clearing", logger.Bool("auth_failure", authFail))
		e.removeDevice(ctx, dev.Address)
	}

	e.notify(StagePairing, fmt.Sprintf("Pairing with %s...", dev.Name))
	if !e.pairWithRetries(ctx, adapter, dev.Address, log) {
		log.Error("Pairing failed after all attempts")
		return ErrPairingFailed
	}

	e.trust(ctx, dev.Address)

	e.notify(StageConnecting, fmt.Sprintf("Connecting to %s...", dev.Name))
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		log.Debug("Post-pair connect attempt", logger.Int("attempt", attempt))
		connected, authFail := e.tryConnect(ctx, dev.Address)
		if connected {
			e.finish(dev, log)
			return nil
		}

		if authFail && attempt < connectAttempts {
			// A freshly created bond can still carry a key the peer
			// rejects. Remove and re-pair once before the next try.
			log.Info("Authentication failure after fresh pair, re-pairing")
			e.removeDevice(ctx, dev.Address)
			if e.pairOnce(ctx, adapter, dev.Address, log) {
				e.trust(ctx, dev.Address)
			}
		} else {
			e.sleep(connectBackoff)
		}
	}

	log.Error("Connection failed after all attempts")
	return ErrConnectFailed
}

// pairWithRetries attempts pairing up to pairAttempts times. Between
// attempts the device's cache entry is removed and discovery briefly
// re-triggered, refreshing the daemon's cache of the device, which pairing
// depends on.
func (e *Engine) pairWithRetries(ctx context.Context, adapter Adapter, mac string, log *logger.Logger) bool {
	for attempt := 1; attempt <= pairAttempts; attempt++ {
		log.Debug("Pair attempt", logger.Int("attempt", attempt))
		if e.pairOnce(ctx, adapter, mac, log) {
			return true
		}
		e.removeDevice(ctx, mac)
		e.rediscover(ctx)
		e.sleep(removeSettle)
	}
	return false
}

// pairOnce runs a single pairing call and verifies the result against the
// daemon when the tool output is inconclusive.
func (e *Engine) pairOnce(ctx context.Context, adapter Adapter, mac string, log *logger.Logger) bool {
	res := e.pairer.Pair(ctx, adapter, mac)
	log.Debug("Pair result",
		logger.Bool("succeeded", res.Succeeded),
		logger.Bool("auth_failure", res.AuthFailure),
		logger.String("output", truncate(res.RawOutput, 300)))
	if res.Succeeded {
		e.sleep(removeSettle)
		return true
	}
	// Tool output said no; the daemon gets the final word.
	e.sleep(pairVerifyWait)
	return e.bondState(ctx, mac).Paired
}

// tryConnect issues a connect call and reports (connected, authFailure).
// Connected is judged by re-querying bond state, not by the tool output.
func (e *Engine) tryConnect(ctx context.Context, mac string) (bool, bool) {
	out, _ := e.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"connect", mac},
		Timeout: connectTimeout,
	})
	e.sleep(connectSettle)

	state := e.bondState(ctx, mac)
	authFail := isAuthFailure(out)
	e.logger.Debug("Connect attempt finished",
		logger.Bool("connected", state.Connected),
		logger.Bool("auth_failure", authFail),
		logger.String("output", truncate(out, 300)))
	return state.Connected, authFail
}

// removeDevice disconnects and forgets the device, clearing any stored
// bond keys.
func (e *Engine) removeDevice(ctx context.Context, mac string) {
	e.runCtl(ctx, disconnectTimeout, "disconnect", mac)
	e.sleep(trustSettle)
	e.runCtl(ctx, removeTimeout, "remove", mac)
	e.sleep(removeSettle)
}

// trust flags the device for auto-reconnect without user confirmation.
func (e *Engine) trust(ctx context.Context, mac string) {
	e.runCtl(ctx, trustTimeout, "trust", mac)
	e.sleep(trustSettle)
}

// rediscover opens a short blocking discovery window so the daemon
// re-learns the device before the next pairing attempt.
func (e *Engine) rediscover(ctx context.Context) {
	_, _ = e.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"--timeout", fmt.Sprintf("%d", int(rediscoverWindow.Seconds())), "scan", "on"},
		Timeout: rediscoverWindow + 3*time.Second,
	})
}

func (e *Engine) bondState(ctx context.Context, mac string) BondState {
	state, err := e.prober.BondState(ctx, mac)
	if err != nil {
		e.logger.Debug("Bond state query failed", logger.Err(err))
		return BondState{}
	}
	return state
}

func (e *Engine) finish(dev Device, log *logger.Logger) {
	e.store.SetBTDevice(dev.Address, dev.Name)
	log.Info("Connected")
}

func (e *Engine) runCtl(ctx context.Context, timeout time.Duration, args ...string) {
	_, _ = e.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    args,
		Timeout: timeout,
	})
}

func (e *Engine) notify(stage Stage, status string) {
	if e.Notify != nil {
		e.Notify(stage, status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
