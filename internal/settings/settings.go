// Package settings persists user preferences across runs, including the
// saved Bluetooth output device. The pairing wizard mutates exactly two
// fields (device address and name); everything else belongs to the player.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pageramp/pageramp/internal/logger"
)

// Values is the on-disk settings document.
type Values struct {
	Theme        string `json:"theme"`
	Volume       int    `json:"volume"`
	Shuffle      bool   `json:"shuffle"`
	Repeat       int    `json:"repeat"`
	Brightness   int    `json:"brightness"`
	BTDeviceMAC  string `json:"bt_device_mac"`
	BTDeviceName string `json:"bt_device_name"`
}

func defaults() Values {
	return Values{
		Theme:      "Winamp Classic",
		Volume:     80,
		Repeat:     0,
		Brightness: 100,
	}
}

// Store owns the settings file. Values live for the process lifetime and
// survive across wizard invocations.
type Store struct {
	path   string
	logger *logger.Logger

	mu     sync.RWMutex
	values Values
}

// NewStore creates a store for the given settings file path.
func NewStore(path string, log *logger.Logger) *Store {
	return &Store{
		path:   path,
		logger: log,
		values: defaults(),
	}
}

// Load reads the settings file, keeping defaults for anything missing or
// unreadable. A missing file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read settings file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	values := defaults()
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Warn("Settings file corrupt, using defaults", logger.Err(err))
		return nil
	}
	s.values = values
	return nil
}

// Save writes the settings atomically (tmp file + rename).
func (s *Store) Save() error {
	s.mu.RLock()
	values := s.values
	s.mu.RUnlock()

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Get returns a copy of the current values.
func (s *Store) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// Set replaces the current values.
func (s *Store) Set(values Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
}

// BTDevice returns the saved Bluetooth device address and display name.
func (s *Store) BTDevice() (mac, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.BTDeviceMAC, s.values.BTDeviceName
}

// SetBTDevice records the Bluetooth device for auto-reconnect. Called by the
// pairing engine only on a successful connection.
func (s *Store) SetBTDevice(mac, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values.BTDeviceMAC = mac
	s.values.BTDeviceName = name
}
