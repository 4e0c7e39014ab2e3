package models

import (
	"fmt"

	"github.com/google/uuid"
)

// EventType represents events emitted by the application core and pushed to
// web clients over the upload server's event stream.
type EventType string

const (
	EventTypeLibraryUpdated     EventType = "library_updated"
	EventTypeUploadCompleted    EventType = "upload_completed"
	EventTypeFileDeleted        EventType = "file_deleted"
	EventTypeBluetoothState     EventType = "bluetooth_state"
	EventTypeBluetoothConnected EventType = "bluetooth_connected"
	EventTypeServerShutdown     EventType = "server_shutdown"
)

// EventMessage is the envelope for stateless events sent to clients.
type EventMessage struct {
	EventID string      `json:"event_id"`
	Event   EventType   `json:"event"`
	Data    interface{} `json:"data,omitempty"`
}

// EventCallback is invoked for every emitted event.
type EventCallback func(eventType EventType, data interface{})

// TrackFile describes one entry in the music library listing.
type TrackFile struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	SizeString string `json:"size_str"`
}

// BluetoothStatus is the payload of bluetooth_* events.
type BluetoothStatus struct {
	State      string `json:"state"`
	Status     string `json:"status"`
	DeviceMAC  string `json:"device_mac,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// ServerInfo describes the upload server to clients on connect.
type ServerInfo struct {
	Application   string `json:"application"`
	SchemaVersion int    `json:"schema_version"`
	MusicDir      string `json:"music_dir"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

// GenerateEventID returns a fresh unique event identifier.
func GenerateEventID() string {
	return uuid.New().String()
}

// FormatSize renders a byte count the way the library listing displays it.
func FormatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}
