package bluetooth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/muka/go-bluetooth/hw"

	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
)

// BootstrapConfig carries the paths and names the bootstrapper needs.
type BootstrapConfig struct {
	DeviceAlias      string
	BluealsadPath    string
	DBusPolicySource string
	DBusPolicyPath   string
	LibraryDirs      []string

	// UseBtmgmt additionally applies adapter settings through the
	// management interface. Only enabled with the btmgmt pair strategy.
	UseBtmgmt bool
}

// adapterManager is the btmgmt surface used when UseBtmgmt is set.
// Satisfied by hw.BtMgmt.
type adapterManager interface {
	SetPowered(status bool) error
	SetConnectable(status bool) error
	SetBondable(status bool) error
}

// Bootstrapper ensures dbus-daemon, bluetoothd and bluealsad are running
// with the right policy and the right adapter. On a factory-reset unit
// nothing is running, so the order matters:
//
//  1. adapter link up via hciconfig (no dbus needed)
//  2. dbus-daemon + BlueALSA policy
//  3. bluetoothd
//  4. adapter config via bluetoothctl (needs bluetoothd)
//  5. bluealsad (needs dbus + bluetoothd)
//
// Every step is best-effort and idempotent; a service that fails to start
// surfaces later through the pairing engine's own error handling.
type Bootstrapper struct {
	runner execx.Runner
	cfg    BootstrapConfig
	logger *logger.Logger

	sleep      func(time.Duration)
	newManager func(adapterID string) adapterManager
}

// NewBootstrapper creates a bootstrapper.
func NewBootstrapper(runner execx.Runner, cfg BootstrapConfig, log *logger.Logger) *Bootstrapper {
	return &Bootstrapper{
		runner: runner,
		cfg:    cfg,
		logger: log.WithName("bootstrap"),
		sleep:  time.Sleep,
		newManager: func(adapterID string) adapterManager {
			return hw.NewBtMgmt(adapterID)
		},
	}
}

// EnsureStack brings the whole service stack up for the given adapter.
// Safe to call repeatedly.
func (b *Bootstrapper) EnsureStack(ctx context.Context, adapter Adapter) {
	b.configureLink(ctx, adapter)
	b.ensureDBus(ctx)
	b.ensureBluetoothd(ctx)
	b.configureDaemon(ctx, adapter)
	b.EnsureBluealsad(ctx, adapter)
}

// configureLink brings the HCI link up with authentication and encryption
// and sets the friendly device name.
func (b *Bootstrapper) configureLink(ctx context.Context, adapter Adapter) {
	b.runHCI(ctx, adapter.ID, "up")
	b.runHCI(ctx, adapter.ID, "auth", "encrypt")
	b.runHCI(ctx, adapter.ID, "name", b.cfg.DeviceAlias)
}

func (b *Bootstrapper) runHCI(ctx context.Context, id string, args ...string) {
	_, err := b.runner.Run(ctx, execx.Command{
		Path:    "hciconfig",
		Args:    append([]string{id}, args...),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		b.logger.Debug("hciconfig failed",
			logger.String("args", strings.Join(args, " ")), logger.Err(err))
	}
}

// ensureDBus installs the BlueALSA bus policy if missing and makes sure
// dbus-daemon is running. A freshly installed policy requires a bus restart
// to take effect.
func (b *Bootstrapper) ensureDBus(ctx context.Context) {
	installed := b.installPolicy()

	if !b.processRunning(ctx, "dbus-daemon") {
		b.runTool(ctx, 5*time.Second, "dbus-daemon", "--system")
		b.sleep(2 * time.Second)
		return
	}

	if installed {
		if _, err := os.Stat("/etc/init.d/dbus"); err == nil {
			b.runTool(ctx, 5*time.Second, "/etc/init.d/dbus", "restart")
		} else {
			b.runTool(ctx, 3*time.Second, "killall", "dbus-daemon")
			b.sleep(time.Second)
			b.runTool(ctx, 5*time.Second, "dbus-daemon", "--system")
		}
		b.sleep(2 * time.Second)
	}
}

// installPolicy copies the bundled policy file into the system D-Bus
// directory. Returns true only when the file was freshly installed.
func (b *Bootstrapper) installPolicy() bool {
	if b.cfg.DBusPolicyPath == "" || b.cfg.DBusPolicySource == "" {
		return false
	}
	if _, err := os.Stat(b.cfg.DBusPolicyPath); err == nil {
		return false
	}
	data, err := os.ReadFile(b.cfg.DBusPolicySource)
	if err != nil {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(b.cfg.DBusPolicyPath), 0755); err != nil {
		b.logger.Warn("Failed to create policy directory", logger.Err(err))
		return false
	}
	if err := os.WriteFile(b.cfg.DBusPolicyPath, data, 0644); err != nil {
		b.logger.Warn("Failed to install D-Bus policy", logger.Err(err))
		return false
	}
	b.logger.Info("Installed BlueALSA D-Bus policy",
		logger.String("path", b.cfg.DBusPolicyPath))
	return true
}

func (b *Bootstrapper) ensureBluetoothd(ctx context.Context) {
	if b.processRunning(ctx, "bluetoothd") {
		return
	}
	if err := b.runner.Start(execx.Command{Path: "bluetoothd", Args: []string{"-n"}}); err != nil {
		b.logger.Warn("Failed to start bluetoothd", logger.Err(err))
		return
	}
	b.sleep(2 * time.Second)
}

// configureDaemon selects the adapter in the daemon context and makes it
// powered, pairable and aliased.
func (b *Bootstrapper) configureDaemon(ctx context.Context, adapter Adapter) {
	if adapter.Address != "" {
		b.runTool(ctx, 10*time.Second, "bluetoothctl", "select", adapter.Address)
	}
	b.runTool(ctx, 10*time.Second, "bluetoothctl", "power", "on")
	b.runTool(ctx, 10*time.Second, "bluetoothctl", "pairable", "on")
	b.runTool(ctx, 10*time.Second, "bluetoothctl", "system-alias", b.cfg.DeviceAlias)

	if b.cfg.UseBtmgmt {
		mgmt := b.newManager(adapter.ID)
		settings := []struct {
			name  string
			apply func(bool) error
		}{
			{"powered", mgmt.SetPowered},
			{"connectable", mgmt.SetConnectable},
			{"bondable", mgmt.SetBondable},
		}
		for _, s := range settings {
			if err := s.apply(true); err != nil {
				b.logger.Warn("btmgmt setting failed",
					logger.String("setting", s.name), logger.Err(err))
			}
		}
	}
}

// EnsureBluealsad makes sure bluealsad runs pinned to the selected adapter
// with both A2DP profiles. If it is running against another adapter it is
// terminated and relaunched.
func (b *Bootstrapper) EnsureBluealsad(ctx context.Context, adapter Adapter) {
	if b.cfg.BluealsadPath == "" {
		return
	}
	if _, err := os.Stat(b.cfg.BluealsadPath); err != nil {
		return
	}

	ps, _ := b.runner.Run(ctx, execx.Command{
		Path:    "ps",
		Args:    []string{"w"},
		Timeout: 5 * time.Second,
	})
	running := strings.Contains(ps, "bluealsad")
	if running && strings.Contains(ps, "-i "+adapter.ID) {
		return
	}
	if running {
		b.runTool(ctx, 3*time.Second, "killall", "bluealsad")
		b.sleep(time.Second)
	}

	err := b.runner.Start(execx.Command{
		Path: b.cfg.BluealsadPath,
		Args: []string{
			"-i", adapter.ID,
			"-p", "a2dp-source",
			"-p", "a2dp-sink",
			"--keep-alive=30",
			"-S",
		},
		Env: []string{"LD_LIBRARY_PATH=" + strings.Join(b.cfg.LibraryDirs, ":")},
	})
	if err != nil {
		b.logger.Warn("Failed to start bluealsad", logger.Err(err))
		return
	}
	b.logger.Info("Started bluealsad", logger.String("adapter", adapter.ID))
	// Wait for profile registration before anyone tries to connect.
	b.sleep(3 * time.Second)
}

func (b *Bootstrapper) processRunning(ctx context.Context, name string) bool {
	out, _ := b.runner.Run(ctx, execx.Command{
		Path:    "pidof",
		Args:    []string{name},
		Timeout: 3 * time.Second,
	})
	return strings.TrimSpace(out) != ""
}

func (b *Bootstrapper) runTool(ctx context.Context, timeout time.Duration, path string, args ...string) {
	out, err := b.runner.Run(ctx, execx.Command{Path: path, Args: args, Timeout: timeout})
	if err != nil {
		b.logger.Debug(fmt.Sprintf("%s failed", path),
			logger.String("args", strings.Join(args, " ")),
			logger.String("output", out),
			logger.Err(err))
	}
}
