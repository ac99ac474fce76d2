package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

func noopHandler(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return nil
}

func TestHandlerRegistry_Handle(t *testing.T) {
	registry := NewHandlerRegistry()
	if err := registry.Handle(protocol.WSTypeReadID, noopHandler); err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	tests := []struct {
		name        string
		messageType string
		handler     HandlerFunc
	}{
		{"nil handler", "nil", nil},
		{"empty message type", "", noopHandler},
		{"duplicate", protocol.WSTypeReadID, noopHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := registry.Handle(tt.messageType, tt.handler); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if !registry.Has(protocol.WSTypeReadID) {
		t.Error("readId handler missing")
	}
	if registry.Has(protocol.WSTypeCancel) {
		t.Error("cancel handler should not be registered")
	}
	if _, ok := registry.Get("nonexistent"); ok {
		t.Error("expected Get to miss")
	}
}

func TestHandlerRegistry_MessageTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	if n := len(registry.MessageTypes()); n != 0 {
		t.Fatalf("expected 0 message types, got %d", n)
	}

	for _, typ := range []string{protocol.WSTypeReadID, protocol.WSTypeReadBlockData, protocol.WSTypeCancel} {
		registry.Handle(typ, noopHandler)
	}

	types := registry.MessageTypes()
	sort.Strings(types)
	want := []string{protocol.WSTypeCancel, protocol.WSTypeReadBlockData, protocol.WSTypeReadID}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("MessageTypes() = %v, want %v", types, want)
	}
}

func TestHandlerRegistry_Dispatch(t *testing.T) {
	registry := NewHandlerRegistry()
	expectedErr := errors.New("test error")

	var got protocol.WebSocketRequest
	registry.Handle("ok", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		got = req
		return nil
	})
	registry.Handle("fail", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		return expectedErr
	})

	h, _ := registry.Get("ok")
	if err := h(context.Background(), nil, protocol.WebSocketRequest{ID: "1", Type: "ok"}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if got.ID != "1" {
		t.Errorf("handler saw request %+v", got)
	}

	if err := registry.Dispatch(context.Background(), nil, protocol.WebSocketRequest{Type: "fail"}); err != expectedErr {
		t.Fatalf("expected %v, got %v", expectedErr, err)
	}
	if err := registry.Dispatch(context.Background(), nil, protocol.WebSocketRequest{Type: "missing"}); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Dispatch(missing) = %v, want ErrUnknownMessageType", err)
	}
}

func TestHandlerRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewHandlerRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Handle(fmt.Sprintf("type%d", i), noopHandler)
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("type%d", i))
			registry.MessageTypes()
		}(i)
	}
	wg.Wait()

	if n := len(registry.MessageTypes()); n != 50 {
		t.Errorf("expected 50 handlers, got %d", n)
	}
}

func TestHandlerRegistry_StartLifecycleHandlers(t *testing.T) {
	registry := NewHandlerRegistry()

	// No starters registered.
	registry.StartLifecycleHandlers(context.Background())

	var mu sync.Mutex
	var seen []context.Context
	for i := 0; i < 3; i++ {
		registry.RegisterLifecycle(func(ctx context.Context) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ctx)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.StartLifecycleHandlers(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 lifecycle starters to run, got %d", len(seen))
	}
	for _, c := range seen {
		if c != ctx {
			t.Error("lifecycle starter did not receive the server context")
		}
	}
}
