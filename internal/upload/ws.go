package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server only exists on the local network.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// EventSource is the server surface the WebSocket handler needs.
type EventSource interface {
	Subscribe(callback models.EventCallback) func()
	GetServerInfo() models.ServerInfo
}

// Handler manages WebSocket connections. The stream is push-only: clients
// receive server info on connect and events thereafter; inbound frames are
// read solely to service pings and detect closure.
type Handler struct {
	source        EventSource
	logger        *logger.Logger
	connections   map[string]*Connection
	connectionsMu sync.RWMutex
}

// Connection represents one WebSocket client.
type Connection struct {
	id          string
	conn        *websocket.Conn
	handler     *Handler
	send        chan []byte
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *logger.Logger
	unsubscribe func()
}

// NewHandler creates a WebSocket handler.
func NewHandler(source EventSource, log *logger.Logger) *Handler {
	return &Handler{
		source:      source,
		logger:      log,
		connections: make(map[string]*Connection),
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", logger.Err(err))
		return
	}

	connID := models.GenerateEventID()
	ctx, cancel := context.WithCancel(r.Context())

	client := &Connection{
		id:      connID,
		conn:    conn,
		handler: h,
		send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
		logger:  h.logger.With(logger.String("connection", connID)),
	}

	client.unsubscribe = h.source.Subscribe(client.handleEvent)

	h.connectionsMu.Lock()
	h.connections[connID] = client
	h.connectionsMu.Unlock()

	client.logger.Info("WebSocket connection established")

	// Send server info immediately so the page can render before any event
	// arrives.
	data, err := json.Marshal(h.source.GetServerInfo())
	if err != nil {
		client.logger.Error("Failed to marshal server info", logger.Err(err))
		client.close()
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		client.logger.Error("Failed to send server info", logger.Err(err))
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// GetConnectionCount returns the number of active connections.
func (h *Handler) GetConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Shutdown closes all connections.
func (h *Handler) Shutdown() {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	for _, conn := range h.connections {
		conn.close()
	}
	h.connections = make(map[string]*Connection)
	h.logger.Info("WebSocket handler shutdown")
}

func (c *Connection) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Inbound payloads are discarded; the read loop exists for pong
		// handling and close detection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", logger.Err(err))
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued messages into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleEvent(eventType models.EventType, data interface{}) {
	event := models.EventMessage{
		EventID: models.GenerateEventID(),
		Event:   eventType,
		Data:    data,
	}
	if err := c.sendMessage(event); err != nil {
		c.logger.Error("Failed to send event",
			logger.String("event", string(eventType)),
			logger.Err(err),
		)
	}
}

func (c *Connection) sendMessage(msg interface{}) error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	case <-time.After(1 * time.Second):
		return fmt.Errorf("send timeout")
	}
}

func (c *Connection) close() {
	select {
	case <-c.ctx.Done():
		return // already closed
	default:
	}

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}

	c.cancel()

	c.handler.connectionsMu.Lock()
	delete(c.handler.connections, c.id)
	c.handler.connectionsMu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				// channel already closed
			}
		}()
		close(c.send)
	}()

	c.conn.Close()

	c.logger.Info("WebSocket connection closed")
}
