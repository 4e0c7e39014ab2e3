package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Music     MusicConfig     `mapstructure:"music"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Bluetooth BluetoothConfig `mapstructure:"bluetooth"`
	MDNS      MDNSConfig      `mapstructure:"mdns"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int   `mapstructure:"port"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

type MusicConfig struct {
	Dir string `mapstructure:"dir"`
}

type StorageConfig struct {
	SettingsPath string `mapstructure:"settings_path"`
}

type BluetoothConfig struct {
	AdapterCandidates []string `mapstructure:"adapter_candidates"`
	DeviceAlias       string   `mapstructure:"device_alias"`
	ScanSeconds       int      `mapstructure:"scan_seconds"`
	PairStrategy      string   `mapstructure:"pair_strategy"` // bluetoothctl or btmgmt
	StateSource       string   `mapstructure:"state_source"`  // bluetoothctl or dbus
	BluealsadPath     string   `mapstructure:"bluealsad_path"`
	AsoundConfPath    string   `mapstructure:"asound_conf_path"`
	DBusPolicySource  string   `mapstructure:"dbus_policy_source"`
	DBusPolicyPath    string   `mapstructure:"dbus_policy_path"`
	LibraryDirs       []string `mapstructure:"library_dirs"`
}

type MDNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Hostname string `mapstructure:"hostname"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Pairing strategy and bond-state source names accepted in config.
const (
	PairStrategyBluetoothctl = "bluetoothctl"
	PairStrategyBtmgmt       = "btmgmt"

	StateSourceBluetoothctl = "bluetoothctl"
	StateSourceDBus         = "dbus"
)

func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Load environment file if specified
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		// Best-effort .env from the current directory.
		_ = loadEnvFile(".env")
	}

	setDefaults(v)

	// Read from config file
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".pageramp"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables
	v.SetEnvPrefix("PAGERAMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Storage.SettingsPath == "" {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		cfg.Storage.SettingsPath = filepath.Join(pwd, "data", "settings.json")
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 1337)
	v.SetDefault("server.max_upload_size", int64(50*1024*1024))
	v.SetDefault("music.dir", "/mmc/music")
	v.SetDefault("bluetooth.adapter_candidates", []string{"hci0", "hci1"})
	v.SetDefault("bluetooth.device_alias", "PagerAmp")
	v.SetDefault("bluetooth.scan_seconds", 12)
	v.SetDefault("bluetooth.pair_strategy", PairStrategyBluetoothctl)
	v.SetDefault("bluetooth.state_source", StateSourceBluetoothctl)
	v.SetDefault("bluetooth.bluealsad_path", "bin/bluealsad")
	v.SetDefault("bluetooth.asound_conf_path", "config/asound.conf")
	v.SetDefault("bluetooth.dbus_policy_source", "config/bluealsa-dbus.conf")
	v.SetDefault("bluetooth.dbus_policy_path", "/etc/dbus-1/system.d/bluealsa.conf")
	v.SetDefault("bluetooth.library_dirs", []string{"lib", "bt/lib", "/mmc/usr/lib", "/usr/lib"})
	v.SetDefault("mdns.enabled", true)
	v.SetDefault("mdns.hostname", "pageramp")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"port":          "server.port",
		"music-dir":     "music.dir",
		"settings-path": "storage.settings_path",
		"device-alias":  "bluetooth.device_alias",
		"scan-seconds":  "bluetooth.scan_seconds",
		"pair-strategy": "bluetooth.pair_strategy",
		"state-source":  "bluetooth.state_source",
		"mdns-enabled":  "mdns.enabled",
		"mdns-hostname": "mdns.hostname",
		"log-level":     "log.level",
		"log-format":    "log.format",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	if cfg.Bluetooth.ScanSeconds <= 0 {
		return fmt.Errorf("invalid scan duration: %d", cfg.Bluetooth.ScanSeconds)
	}

	if len(cfg.Bluetooth.AdapterCandidates) == 0 {
		return fmt.Errorf("no adapter candidates configured")
	}

	switch cfg.Bluetooth.PairStrategy {
	case PairStrategyBluetoothctl, PairStrategyBtmgmt:
	default:
		return fmt.Errorf("invalid pair strategy: %s", cfg.Bluetooth.PairStrategy)
	}

	switch cfg.Bluetooth.StateSource {
	case StateSourceBluetoothctl, StateSourceDBus:
	default:
		return fmt.Errorf("invalid state source: %s", cfg.Bluetooth.StateSource)
	}

	return nil
}
