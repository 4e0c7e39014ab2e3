package bluetooth

import (
	"context"
	"fmt"
	"time"

	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/models"
	"github.com/pageramp/pageramp/internal/settings"
)

// State is the wizard's single mutable mode. It drives both rendering and
// input dispatch.
type State int

const (
	StateCheckAdapter State = iota
	StateScan
	StateSelectDevice
	StatePair
	StateConnect
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateCheckAdapter:
		return "check_adapter"
	case StateScan:
		return "scan"
	case StateSelectDevice:
		return "select_device"
	case StatePair:
		return "pair"
	case StateConnect:
		return "connect"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Button is a logical input. The host maps physical keys to these.
type Button int

const (
	ButtonUp Button = iota
	ButtonDown
	ButtonConfirm
	ButtonBack
)

// pairDelayTicks is how many update ticks a confirmed pairing request waits
// before the blocking engine call executes, so the "Pairing..." status has
// rendered at least once.
const pairDelayTicks = 2

// defaultVisibleRows is the device list page size used for scrolling.
const defaultVisibleRows = 9

// View is the render snapshot handed to the host each frame.
type View struct {
	State        State
	Status       string
	ErrorLines   []string
	Devices      []Device
	Selected     int
	ScrollOffset int
}

// Wizard is the frame-driven controller for the whole pairing flow.
//
// The host calls Update once per render tick and HandleInput on every
// button event; both return quickly except for the deliberately blocking
// engine call, whose status text is guaranteed to have painted first via a
// two-tick deferral. Adapter and device state are rebuilt on every Enter;
// only the settings store survives across sessions.
type Wizard struct {
	selector *Selector
	boot     *Bootstrapper
	scanner  *Scanner
	engine   *Engine
	store    *settings.Store
	logger   *logger.Logger

	returnScreen string
	visibleRows  int
	events       models.EventCallback

	state        State
	status       string
	errorLines   []string
	adapter      Adapter
	devices      []Device
	selected     int
	scrollOffset int

	pendingDevice *Device
	pendingTicks  int
}

// NewWizard wires the wizard to its collaborators. returnScreen is the
// transition token handed back to the host when the user leaves the wizard.
func NewWizard(selector *Selector, boot *Bootstrapper, scanner *Scanner, engine *Engine,
	store *settings.Store, returnScreen string, log *logger.Logger) *Wizard {
	w := &Wizard{
		selector:     selector,
		boot:         boot,
		scanner:      scanner,
		engine:       engine,
		store:        store,
		returnScreen: returnScreen,
		visibleRows:  defaultVisibleRows,
		logger:       log.WithName("wizard"),
	}
	engine.Notify = w.onEngineStage
	return w
}

// SetEventCallback registers an optional sink for state-change events.
func (w *Wizard) SetEventCallback(cb models.EventCallback) {
	w.events = cb
}

// Enter resets the wizard to its initial state. Call it every time the host
// navigates to the pairing screen; nothing is cached across sessions.
func (w *Wizard) Enter() {
	w.adapter = Adapter{}
	w.devices = nil
	w.selected = 0
	w.scrollOffset = 0
	w.errorLines = nil
	w.pendingDevice = nil
	w.pendingTicks = 0
	w.setState(StateCheckAdapter, "Checking Bluetooth adapter...")
}

// Update advances the wizard by one tick. It performs at most one state
// transition's worth of work, except for the scheduled pairing call which
// blocks once its deferral has elapsed.
func (w *Wizard) Update(ctx context.Context) {
	switch w.state {
	case StateCheckAdapter:
		w.checkAdapter(ctx)
	case StateScan:
		w.pollScan(ctx)
	case StatePair:
		w.tickPending(ctx)
	}
}

// HandleInput dispatches one button event. Release events are ignored. The
// returned token is the host screen to navigate to, or "" to stay.
func (w *Wizard) HandleInput(btn Button, pressed bool) string {
	if !pressed {
		return ""
	}
	switch w.state {
	case StateCheckAdapter, StateScan:
		if btn == ButtonBack {
			return w.returnScreen
		}
		if btn == ButtonConfirm && w.state == StateScan {
			w.rescan()
		}
	case StateSelectDevice:
		switch btn {
		case ButtonUp:
			w.moveSelection(-1)
		case ButtonDown:
			w.moveSelection(1)
		case ButtonConfirm:
			w.schedulePair()
		case ButtonBack:
			return w.returnScreen
		}
	case StateError:
		switch btn {
		case ButtonConfirm:
			// Retry from the top: re-run adapter discovery.
			w.Enter()
		case ButtonBack:
			return w.returnScreen
		}
	case StateDone:
		if btn == ButtonConfirm || btn == ButtonBack {
			return w.returnScreen
		}
	}
	return ""
}

// Snapshot returns the current render view.
func (w *Wizard) Snapshot() View {
	devices := make([]Device, len(w.devices))
	copy(devices, w.devices)
	lines := make([]string, len(w.errorLines))
	copy(lines, w.errorLines)
	return View{
		State:        w.state,
		Status:       w.status,
		ErrorLines:   lines,
		Devices:      devices,
		Selected:     w.selected,
		ScrollOffset: w.scrollOffset,
	}
}

func (w *Wizard) checkAdapter(ctx context.Context) {
	adapter, err := w.selector.FindAdapter(ctx)
	if err != nil {
		w.fail("No USB Bluetooth adapter found.", "Attach a USB dongle and retry.")
		return
	}
	w.adapter = adapter
	w.setState(StateScan, "Preparing Bluetooth services...")
	w.boot.EnsureStack(ctx, adapter)
	w.scanner.StartDiscovery()
	w.status = "Scanning for devices..."
}

func (w *Wizard) pollScan(ctx context.Context) {
	res := w.scanner.Poll(ctx)
	if res.InProgress {
		w.status = fmt.Sprintf("Scanning... %ds", int(res.Remaining.Round(time.Second).Seconds()))
		return
	}
	if len(res.Devices) == 0 {
		w.status = "No devices found. Confirm to rescan."
		return
	}
	w.devices = res.Devices
	w.selected = 0
	w.scrollOffset = 0
	w.setState(StateSelectDevice, "Select a device")
}

func (w *Wizard) rescan() {
	w.scanner.StartDiscovery()
	w.status = "Scanning for devices..."
}

func (w *Wizard) moveSelection(delta int) {
	if len(w.devices) == 0 {
		return
	}
	w.selected += delta
	if w.selected < 0 {
		w.selected = 0
	}
	if w.selected > len(w.devices)-1 {
		w.selected = len(w.devices) - 1
	}
	if w.selected < w.scrollOffset {
		w.scrollOffset = w.selected
	}
	if w.selected >= w.scrollOffset+w.visibleRows {
		w.scrollOffset = w.selected - w.visibleRows + 1
	}
}

// schedulePair records the confirmed device and arms the deferral counter.
// The engine call itself happens in a later Update tick.
func (w *Wizard) schedulePair() {
	if w.selected < 0 || w.selected >= len(w.devices) {
		return
	}
	dev := w.devices[w.selected]
	w.pendingDevice = &dev
	w.pendingTicks = 0
	w.setState(StatePair, fmt.Sprintf("Pairing with %s...", dev.Name))
}

func (w *Wizard) tickPending(ctx context.Context) {
	if w.pendingDevice == nil {
		return
	}
	w.pendingTicks++
	if w.pendingTicks < pairDelayTicks {
		return
	}
	dev := *w.pendingDevice
	w.pendingDevice = nil
	w.pendingTicks = 0
	w.runEngine(ctx, dev)
}

// runEngine executes the blocking connect protocol and maps its outcome to
// a wizard state.
func (w *Wizard) runEngine(ctx context.Context, dev Device) {
	err := w.engine.Connect(ctx, w.adapter, dev)
	switch {
	case err == nil:
		if err := w.store.Save(); err != nil {
			w.logger.Warn("Failed to persist settings", logger.Err(err))
		}
		w.setState(StateDone, fmt.Sprintf("Connected to %s", dev.Name))
		w.emit(models.EventTypeBluetoothConnected, models.BluetoothStatus{
			State:      w.state.String(),
			Status:     w.status,
			DeviceMAC:  dev.Address,
			DeviceName: dev.Name,
		})
	case err == ErrPairingFailed:
		w.fail("Pairing failed.", "Put the device in pairing mode and retry.")
	case err == ErrConnectFailed:
		w.fail("Connection failed.", "Move the device closer and retry.")
	default:
		w.fail("Bluetooth error.", err.Error())
	}
}

// onEngineStage receives phase changes from the engine while Connect is
// running, keeping the status line in step with the protocol.
func (w *Wizard) onEngineStage(stage Stage, status string) {
	if stage == StageConnecting {
		w.state = StateConnect
	}
	w.status = status
}

func (w *Wizard) fail(lines ...string) {
	w.errorLines = lines
	w.setState(StateError, "Confirm to retry, Back to exit")
}

func (w *Wizard) setState(s State, status string) {
	if s != w.state {
		w.logger.Debug("State change",
			logger.String("from", w.state.String()), logger.String("to", s.String()))
	}
	w.state = s
	w.status = status
	w.emit(models.EventTypeBluetoothState, models.BluetoothStatus{
		State:  s.String(),
		Status: status,
	})
}

func (w *Wizard) emit(event models.EventType, data interface{}) {
	if w.events == nil {
		return
	}
	w.events(event, data)
}
