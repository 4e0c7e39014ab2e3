// Command pair-tui hosts the pairing wizard in a terminal, standing in for
// the device's screen and buttons during development.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pageramp/pageramp/internal/audio"
	"github.com/pageramp/pageramp/internal/bluetooth"
	"github.com/pageramp/pageramp/internal/config"
	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/settings"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pair-tui",
		Short: "Interactive Bluetooth pairing wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd)
		},
	}
	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.pageramp/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "env file to load environment variables from")
	rootCmd.PersistentFlags().String("settings-path", "", "settings file path")
	rootCmd.Flags().String("pair-strategy", config.PairStrategyBluetoothctl,
		"pairing strategy (bluetoothctl, btmgmt)")
	rootCmd.Flags().Int("scan-seconds", 12, "discovery window in seconds")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The terminal is busy rendering; keep log output out of it.
	log := logger.Discard()

	runner := execx.NewRunner()
	store := settings.NewStore(cfg.Storage.SettingsPath, log)
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	selector := bluetooth.NewSelector(runner, cfg.Bluetooth.AdapterCandidates, log)
	boot := bluetooth.NewBootstrapper(runner, bluetooth.BootstrapConfig{
		DeviceAlias:      cfg.Bluetooth.DeviceAlias,
		BluealsadPath:    cfg.Bluetooth.BluealsadPath,
		DBusPolicySource: cfg.Bluetooth.DBusPolicySource,
		DBusPolicyPath:   cfg.Bluetooth.DBusPolicyPath,
		LibraryDirs:      cfg.Bluetooth.LibraryDirs,
		UseBtmgmt:        cfg.Bluetooth.PairStrategy == config.PairStrategyBtmgmt,
	}, log)
	scanner := bluetooth.NewScanner(runner, store,
		time.Duration(cfg.Bluetooth.ScanSeconds)*time.Second, log)

	var pairer bluetooth.Pairer
	if cfg.Bluetooth.PairStrategy == config.PairStrategyBtmgmt {
		pairer = bluetooth.NewMgmtPairer(runner)
	} else {
		pairer = bluetooth.NewCtlPairer(runner)
	}
	prober := bluetooth.NewCtlProber(runner)
	routing := audio.RoutingFile{Path: cfg.Bluetooth.AsoundConfPath}
	engine := bluetooth.NewEngine(runner, pairer, prober, boot, routing, store, log)

	wizard := bluetooth.NewWizard(selector, boot, scanner, engine, store, "quit", log)
	wizard.Enter()

	m := model{wizard: wizard, ctx: context.Background()}
	_, err = tea.NewProgram(m).Run()
	return err
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	wizard *bluetooth.Wizard
	ctx    context.Context
	view   bluetooth.View
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.wizard.Update(m.ctx)
		m.view = m.wizard.Snapshot()
		return m, tick()

	case tea.KeyMsg:
		var btn bluetooth.Button
		switch msg.String() {
		case "up", "k":
			btn = bluetooth.ButtonUp
		case "down", "j":
			btn = bluetooth.ButtonDown
		case "enter", " ":
			btn = bluetooth.ButtonConfirm
		case "esc", "backspace", "q":
			btn = bluetooth.ButtonBack
		case "ctrl+c":
			return m, tea.Quit
		default:
			return m, nil
		}
		if token := m.wizard.HandleInput(btn, true); token != "" {
			return m, tea.Quit
		}
		m.view = m.wizard.Snapshot()
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	s := titleStyle.Render("Bluetooth Setup") + "\n\n"
	s += statusStyle.Render(m.view.Status) + "\n"

	if m.view.State == bluetooth.StateError {
		for _, line := range m.view.ErrorLines {
			s += errorStyle.Render(line) + "\n"
		}
	}

	if m.view.State == bluetooth.StateSelectDevice {
		s += "\n"
		end := m.view.ScrollOffset + 9
		if end > len(m.view.Devices) {
			end = len(m.view.Devices)
		}
		for i := m.view.ScrollOffset; i < end; i++ {
			label := m.view.Devices[i].Label()
			if i == m.view.Selected {
				s += selectedStyle.Render("> "+label) + "\n"
			} else {
				s += "  " + label + "\n"
			}
		}
	}

	s += "\n" + helpStyle.Render("up/down: navigate  enter: confirm  esc: back")
	return s
}
