package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pageramp/pageramp/internal/audio"
	"github.com/pageramp/pageramp/internal/bluetooth"
	"github.com/pageramp/pageramp/internal/config"
	"github.com/pageramp/pageramp/internal/execx"
	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/mdns"
	"github.com/pageramp/pageramp/internal/settings"
	"github.com/pageramp/pageramp/internal/upload"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	rootCmd := &cobra.Command{
		Use:     "pageramp",
		Short:   "PagerAmp - handheld media player services",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx, cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.pageramp/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "env file to load environment variables from (e.g., .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("settings-path", "", "settings file path (default: ./data/settings.json)")

	// Serve flags
	rootCmd.Flags().IntP("port", "p", 1337, "upload server port")
	rootCmd.Flags().String("music-dir", "/mmc/music", "music library directory")
	rootCmd.Flags().Bool("mdns-enabled", true, "advertise the upload server via mDNS")
	rootCmd.Flags().String("mdns-hostname", "pageramp", "hostname to advertise via mDNS")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for Bluetooth audio devices and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(ctx, cmd)
		},
	}
	scanCmd.Flags().Int("scan-seconds", 12, "discovery window in seconds")

	pairCmd := &cobra.Command{
		Use:   "pair <address>",
		Short: "Pair with and connect to a Bluetooth audio device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPair(ctx, cmd, args[0])
		},
	}
	pairCmd.Flags().String("pair-strategy", config.PairStrategyBluetoothctl,
		"pairing strategy (bluetoothctl, btmgmt)")
	pairCmd.Flags().String("state-source", config.StateSourceBluetoothctl,
		"bond state source (bluetoothctl, dbus)")
	pairCmd.Flags().String("device-alias", "PagerAmp", "Bluetooth alias of this device")

	rootCmd.AddCommand(scanCmd, pairCmd)

	return rootCmd.ExecuteContext(ctx)
}

// runServe starts the upload server and the mDNS responder.
func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	srv := upload.New(cfg, log)

	if cfg.MDNS.Enabled {
		zone := mdns.NewPlayerZone(cfg.MDNS.Hostname, uint16(cfg.Server.Port), log)
		mdnsServer, err := mdns.NewServer(&mdns.Config{Zone: zone, Logger: log})
		if err != nil {
			log.Warn("Failed to create mDNS responder", logger.Err(err))
		} else if err := mdnsServer.Start(); err != nil {
			log.Warn("Failed to start mDNS responder", logger.Err(err))
		} else {
			defer mdnsServer.Shutdown()
			log.Info("Advertising on the local network",
				logger.String("hostname", zone.Hostname()),
				logger.Int("port", cfg.Server.Port),
			)
		}
	}

	return srv.Run(ctx)
}

// runScan runs a single discovery window headlessly and prints the merged
// candidate list.
func runScan(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	stack, err := buildStack(cfg, log)
	if err != nil {
		return err
	}
	defer stack.close()

	adapter, err := stack.selector.FindAdapter(ctx)
	if err != nil {
		return err
	}
	stack.boot.EnsureStack(ctx, adapter)

	stack.scanner.StartDiscovery()
	for {
		res := stack.scanner.Poll(ctx)
		if !res.InProgress {
			if len(res.Devices) == 0 {
				fmt.Println("no devices found")
				return nil
			}
			for _, d := range res.Devices {
				fmt.Printf("%s  %s\n", d.Address, d.Label())
			}
			return nil
		}
		fmt.Printf("\rscanning... %ds ", int(res.Remaining.Round(time.Second).Seconds()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// runPair drives the engine directly against one address, outside the
// on-device wizard.
func runPair(ctx context.Context, cmd *cobra.Command, address string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("invalid device address: %s", address)
	}

	stack, err := buildStack(cfg, log)
	if err != nil {
		return err
	}
	defer stack.close()

	adapter, err := stack.selector.FindAdapter(ctx)
	if err != nil {
		return err
	}
	stack.boot.EnsureStack(ctx, adapter)

	stack.engine.Notify = func(_ bluetooth.Stage, status string) {
		fmt.Println(status)
	}
	dev := bluetooth.Device{Address: address, Name: address}
	if err := stack.engine.Connect(ctx, adapter, dev); err != nil {
		return err
	}
	if err := stack.store.Save(); err != nil {
		log.Warn("Failed to persist settings", logger.Err(err))
	}
	fmt.Println("connected")
	return nil
}

// btStack bundles the Bluetooth collaborators a headless command needs.
type btStack struct {
	selector *bluetooth.Selector
	boot     *bluetooth.Bootstrapper
	scanner  *bluetooth.Scanner
	engine   *bluetooth.Engine
	store    *settings.Store

	prober bluetooth.StateProber
}

func buildStack(cfg *config.Config, log *logger.Logger) (*btStack, error) {
	runner := execx.NewRunner()

	store := settings.NewStore(cfg.Storage.SettingsPath, log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
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
	switch cfg.Bluetooth.PairStrategy {
	case config.PairStrategyBtmgmt:
		pairer = bluetooth.NewMgmtPairer(runner)
	default:
		pairer = bluetooth.NewCtlPairer(runner)
	}

	var prober bluetooth.StateProber
	if cfg.Bluetooth.StateSource == config.StateSourceDBus {
		dbusProber, err := bluetooth.NewDBusProber(cfg.Bluetooth.AdapterCandidates[0])
		if err != nil {
			log.Warn("D-Bus state source unavailable, falling back to bluetoothctl",
				logger.Err(err))
			prober = bluetooth.NewCtlProber(runner)
		} else {
			prober = dbusProber
		}
	} else {
		prober = bluetooth.NewCtlProber(runner)
	}

	routing := audio.RoutingFile{Path: cfg.Bluetooth.AsoundConfPath}
	engine := bluetooth.NewEngine(runner, pairer, prober, boot, routing, store, log)

	return &btStack{
		selector: selector,
		boot:     boot,
		scanner:  scanner,
		engine:   engine,
		store:    store,
		prober:   prober,
	}, nil
}

func (s *btStack) close() {
	if closer, ok := s.prober.(*bluetooth.DBusProber); ok {
		closer.Close()
	}
}

func setupLogger(levelStr, formatStr string) (*logger.Logger, error) {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var format logger.Format
	switch formatStr {
	case "console":
		format = logger.ConsoleFormat
	case "json":
		format = logger.JSONFormat
	default:
		return nil, fmt.Errorf("invalid log format: %s", formatStr)
	}

	return logger.New(logger.Config{
		Level:     level,
		Format:    format,
		UseColors: format == logger.ConsoleFormat,
	}), nil
}
