package upload

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pageramp/pageramp/internal/models"
)

func dialTestWS(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(s.Router())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestWebSocketSendsServerInfoOnConnect(t *testing.T) {
	s := newTestServer(t)
	conn, cleanup := dialTestWS(t, s)
	defer cleanup()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var info models.ServerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Application != "pageramp" {
		t.Errorf("application = %q", info.Application)
	}
	if info.MaxUploadSize != s.config.Server.MaxUploadSize {
		t.Errorf("max upload size = %d", info.MaxUploadSize)
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	s := newTestServer(t)
	conn, cleanup := dialTestWS(t, s)
	defer cleanup()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil { // server info
		t.Fatalf("read server info: %v", err)
	}

	// Give the subscription a moment to land before emitting.
	waitForConnections(t, s, 1)
	s.EmitEvent(models.EventTypeBluetoothState, models.BluetoothStatus{
		State:  "scan",
		Status: "Scanning...",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}

	var event models.EventMessage
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != models.EventTypeBluetoothState {
		t.Errorf("event = %q", event.Event)
	}
	if event.EventID == "" {
		t.Error("event ID missing")
	}
}

func TestWebSocketConnectionCountTracksClose(t *testing.T) {
	s := newTestServer(t)
	conn, cleanup := dialTestWS(t, s)

	waitForConnections(t, s, 1)
	conn.Close()
	waitForConnections(t, s, 0)
	cleanup()
}

func waitForConnections(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.wsHandler.GetConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection count never reached %d", want)
}
