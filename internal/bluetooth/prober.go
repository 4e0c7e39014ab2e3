package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/pageramp/pageramp/internal/execx"
)

// StateProber answers "what does the daemon currently believe about this
// device". Queried fresh after every mutating operation; never cached.
type StateProber interface {
	BondState(ctx context.Context, mac string) (BondState, error)
}

// CtlProber derives bond state from `bluetoothctl info` output. Default,
// and the only option when the D-Bus policy is not installed yet.
type CtlProber struct {
	runner execx.Runner
}

// NewCtlProber creates the bluetoothctl-based prober.
func NewCtlProber(runner execx.Runner) *CtlProber {
	return &CtlProber{runner: runner}
}

func (p *CtlProber) BondState(ctx context.Context, mac string) (BondState, error) {
	out, _ := p.runner.Run(ctx, execx.Command{
		Path:    "bluetoothctl",
		Args:    []string{"info", mac},
		Timeout: 5 * time.Second,
	})
	return parseBondState(out), nil
}

const (
	bluezService = "org.bluez"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// DBusProber queries Device1 properties on the system bus directly.
type DBusProber struct {
	conn      *dbus.Conn
	adapterID string
}

// NewDBusProber connects to the system bus and verifies BlueZ is present.
func NewDBusProber(adapterID string) (*DBusProber, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	for _, n := range names {
		if n == bluezService {
			return &DBusProber{conn: conn, adapterID: adapterID}, nil
		}
	}
	conn.Close()
	return nil, fmt.Errorf("org.bluez not found on system bus — is bluetoothd running?")
}

// Close releases the bus connection.
func (p *DBusProber) Close() error {
	return p.conn.Close()
}

// BondState reads the Paired and Connected properties. A device unknown to
// the daemon reports as neither paired nor connected, which is what the
// engine needs, so property errors map to the zero state.
func (p *DBusProber) BondState(ctx context.Context, mac string) (BondState, error) {
	_ = ctx // godbus property calls carry their own internal timeout

	var state BondState
	path := p.devicePath(mac)
	paired, err := p.getBool(path, "Paired")
	if err != nil {
		return state, nil
	}
	state.Paired = paired
	if connected, err := p.getBool(path, "Connected"); err == nil {
		state.Connected = connected
	}
	return state, nil
}

// devicePath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func (p *DBusProber) devicePath(mac string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(mac, ":", "_")
	return dbus.ObjectPath("/org/bluez/" + p.adapterID + "/dev_" + escaped)
}

func (p *DBusProber) getBool(path dbus.ObjectPath, prop string) (bool, error) {
	obj := p.conn.Object(bluezService, path)
	var v dbus.Variant
	if err := obj.Call(propsIface+".Get", 0, deviceIface, prop).Store(&v); err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}
