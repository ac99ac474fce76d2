package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// ErrUnknownMessageType is returned by Dispatch when no handler is
// registered for the request type.
var ErrUnknownMessageType = errors.New("unknown message type")

// HandlerFunc serves one bridge request. ctx is cancelled when the client
// disconnects or the server stops; a read in flight must end with it.
type HandlerFunc func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error

// HandlerServer is what a ServerHandler registers itself with.
type HandlerServer interface {
	Handle(messageType string, handler HandlerFunc) error

	// StartLifecycle registers a goroutine body started with the server
	// context, e.g. a loop forwarding reader status to clients.
	StartLifecycle(start func(ctx context.Context))

	BroadcastSessionStatus(status nfc.SessionStatus)
}

// ServerHandler groups related message handlers behind one Register call.
type ServerHandler interface {
	Register(server HandlerServer)
}

// HandlerRegistry maps request types such as readId and cancel to
// handlers. It is safe for concurrent use.
type HandlerRegistry struct {
	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	lifecycle []func(ctx context.Context)
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Handle registers handler for messageType. Each type may be registered
// once.
func (r *HandlerRegistry) Handle(messageType string, handler HandlerFunc) error {
	switch {
	case handler == nil:
		return fmt.Errorf("handler for %q cannot be nil", messageType)
	case messageType == "":
		return errors.New("message type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[messageType]; exists {
		return fmt.Errorf("handler for message type %q already registered", messageType)
	}
	r.handlers[messageType] = handler
	return nil
}

func (r *HandlerRegistry) RegisterLifecycle(start func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle = append(r.lifecycle, start)
}

func (r *HandlerRegistry) Get(messageType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[messageType]
	return handler, ok
}

func (r *HandlerRegistry) Has(messageType string) bool {
	_, ok := r.Get(messageType)
	return ok
}

// Dispatch runs the handler registered for req.Type.
func (r *HandlerRegistry) Dispatch(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	handler, ok := r.Get(req.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, req.Type)
	}
	return handler(ctx, client, req)
}

// MessageTypes lists the registered request types in no particular order.
func (r *HandlerRegistry) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// StartLifecycleHandlers calls every registered starter with ctx.
func (r *HandlerRegistry) StartLifecycleHandlers(ctx context.Context) {
	r.mu.RLock()
	starters := append([]func(context.Context){}, r.lifecycle...)
	r.mu.RUnlock()

	for _, start := range starters {
		start(ctx)
	}
}
