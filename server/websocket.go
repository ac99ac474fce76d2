package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are bound by the session manager and CORS, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a connected WebSocket peer. Writes are serialized so read
// handlers running on their own goroutines can reply concurrently.
type Client struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{id: uuid.NewString(), conn: conn}
}

// ID returns the identifier assigned when the client connected.
func (c *Client) ID() string {
	return c.id
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendError writes a transport-level error response for request id.
func (c *Client) SendError(id string, code string, message string) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      id,
		Type:    protocol.WSTypeError,
		Success: false,
		Payload: protocol.ErrorPayload{Code: code},
		Error:   message,
	})
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
}

// ClientManager tracks connected clients by id.
type ClientManager struct {
	clients sync.Map
}

// NewClientManager creates an empty client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{}
}

// Register stores a client.
func (m *ClientManager) Register(c *Client) {
	m.clients.Store(c.id, c)
}

// Unregister removes a client.
func (m *ClientManager) Unregister(c *Client) {
	m.clients.Delete(c.id)
}

// Count returns the number of connected clients.
func (m *ClientManager) Count() int {
	n := 0
	m.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Broadcast sends v to every client. Failed sends are logged and skipped.
func (m *ClientManager) Broadcast(v any) {
	m.clients.Range(func(key, value any) bool {
		c := value.(*Client)
		if err := c.Send(v); err != nil {
			log.WithField("component", "server").Debugf("Broadcast to %s failed: %v", key, err)
		}
		return true
	})
}

// CloseAll closes every client connection.
func (m *ClientManager) CloseAll() {
	m.clients.Range(func(key, value any) bool {
		value.(*Client).close()
		m.clients.Delete(key)
		return true
	})
}

// serveClient runs the read loop for c until the connection drops. Each
// request is dispatched through the registry; the context handed to
// handlers is cancelled when the loop exits.
func (s *Server) serveClient(ctx context.Context, c *Client) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := log.WithFields(log.Fields{"component": "server", "client": c.id})

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			logger.Debugf("Malformed request: %v", err)
			c.SendError("", protocol.WSErrParse, "invalid JSON message")
			continue
		}

		err = s.registry.Dispatch(ctx, c, req)
		switch {
		case errors.Is(err, ErrUnknownMessageType):
			c.SendError(req.ID, protocol.WSErrUnknownType, fmt.Sprintf("unknown message type: %s", req.Type))
		case err != nil:
			logger.Errorf("Handler for %s failed: %v", req.Type, err)
		}
	}
}
