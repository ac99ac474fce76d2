// Package client is the Go facade over the reader bridge WebSocket: the
// same readId / readBlockData / convertToHistory calls a scripted
// application makes, with results returned instead of passed to callbacks.
//
// Example:
//
//	c, err := client.Dial(ctx, "ws://localhost:18080/ws")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	result, err := c.ReadID(ctx, protocol.ReadOptions{Message: "Hold your card"})
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

var logger = log.WithField("component", "client")

// ErrClosed is returned for calls on a closed or dropped connection.
var ErrClosed = errors.New("client: connection closed")

// StatusHandler receives session transitions pushed by the bridge.
type StatusHandler func(status protocol.SessionStatusPayload)

// Option configures a Client.
type Option func(*options)

type options struct {
	secret   string
	onStatus StatusHandler
	dialer   *websocket.Dialer
}

// WithSecret sends the bridge API secret on the handshake.
func WithSecret(secret string) Option {
	return func(o *options) { o.secret = secret }
}

// WithStatusHandler registers fn for sessionStatus events. fn runs on the
// read loop and must not block.
func WithStatusHandler(fn StatusHandler) Option {
	return func(o *options) { o.onStatus = fn }
}

// WithDialer replaces websocket.DefaultDialer, e.g. to trust the bridge CA.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

type response struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// Client is a connection to the bridge. Its methods are safe for concurrent
// use, though the bridge itself runs one read at a time.
type Client struct {
	conn     *websocket.Conn
	onStatus StatusHandler

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response
	err     error
	done    chan struct{}
}

// Dial connects to the bridge WebSocket at rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	o := options{dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid URL: %w", err)
	}
	if o.secret != "" {
		q := u.Query()
		q.Set("secret", o.secret)
		u.RawQuery = q.Encode()
	}

	header := http.Header{"User-Agent": []string{buildinfo.UserAgent()}}
	conn, resp, err := o.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: handshake rejected with %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		onStatus: o.onStatus,
		pending:  make(map[string]chan response),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// ReadID waits for a tag and returns its identifier. A session cancelled
// by the user yields a result with Cancelled set and no error.
func (c *Client) ReadID(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error) {
	return c.read(ctx, protocol.WSTypeReadID, opts)
}

// ReadBlockData waits for a FeliCa tag and reads the requested blocks.
func (c *Client) ReadBlockData(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error) {
	return c.read(ctx, protocol.WSTypeReadBlockData, opts)
}

// Cancel cancels the bridge's running session. It reports whether one was
// running.
func (c *Client) Cancel(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, protocol.WSTypeCancel, nil)
	if err != nil {
		return false, err
	}
	var payload struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		return false, fmt.Errorf("client: decode cancel response: %w", err)
	}
	return payload.Cancelled, nil
}

// ConvertToHistory decodes a transit history block returned by
// ReadBlockData.
func ConvertToHistory(block []byte) (protocol.History, error) {
	return protocol.DecodeHistory(block)
}

// read runs a read request. When ctx ends first the bridge session is
// cancelled so that the reader is released.
func (c *Client) read(ctx context.Context, msgType string, opts protocol.ReadOptions) (*protocol.ReadResult, error) {
	payload, err := optionsPayload(opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, msgType, payload)
	if err != nil {
		if ctx.Err() != nil {
			cancelCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if _, cerr := c.Cancel(cancelCtx); cerr != nil {
				logger.WithError(cerr).Debug("Failed to cancel abandoned session")
			}
		}
		return nil, err
	}

	var result protocol.ReadResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("client: decode %s: %w", resp.Type, err)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, msgType string, payload map[string]any) (response, error) {
	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return response{}, c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(protocol.WebSocketRequest{ID: id, Type: msgType, Payload: payload}); err != nil {
		return response{}, err
	}

	select {
	case resp := <-ch:
		if err := responseError(resp); err != nil {
			return response{}, err
		}
		return resp, nil
	case <-c.done:
		return response{}, c.closedErr()
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (c *Client) send(req protocol.WebSocketRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("client: send %s: %w", req.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			c.err = ErrClosed
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("Bridge connection dropped")
			}
			return
		}

		if resp.Type == protocol.WSTypeSessionStatus {
			c.dispatchStatus(resp.Payload)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			logger.WithFields(log.Fields{"id": resp.ID, "type": resp.Type}).Debug("Dropping unmatched response")
			continue
		}
		ch <- resp
	}
}

func (c *Client) dispatchStatus(raw json.RawMessage) {
	if c.onStatus == nil {
		return
	}
	var status protocol.SessionStatusPayload
	if err := json.Unmarshal(raw, &status); err != nil {
		logger.WithError(err).Debug("Malformed session status")
		return
	}
	c.onStatus(status)
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

// optionsPayload converts opts to the generic payload map the bridge
// expects.
func optionsPayload(opts protocol.ReadOptions) (map[string]any, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("client: encode options: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("client: encode options: %w", err)
	}
	return payload, nil
}
