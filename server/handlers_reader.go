package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// ReaderHandler exposes readId, readBlockData and cancel over the
// WebSocket and forwards reader session transitions to clients.
type ReaderHandler struct {
	reader  ReaderService
	metrics *Metrics
}

// NewReaderHandler creates a handler backed by reader. metrics may be nil.
func NewReaderHandler(reader ReaderService, metrics *Metrics) *ReaderHandler {
	return &ReaderHandler{reader: reader, metrics: metrics}
}

// Register implements ServerHandler.
func (h *ReaderHandler) Register(s HandlerServer) {
	s.Handle(protocol.WSTypeReadID, h.handleRead(protocol.WSTypeReadID, protocol.WSTypeReadIDResponse, h.reader.ReadID))
	s.Handle(protocol.WSTypeReadBlockData, h.handleRead(protocol.WSTypeReadBlockData, protocol.WSTypeReadBlockDataResponse, h.reader.ReadBlockData))
	s.Handle(protocol.WSTypeCancel, h.handleCancel)
	s.StartLifecycle(func(ctx context.Context) {
		go h.forwardStatus(ctx, s)
	})
}

type readFunc func(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error)

// handleRead returns a handler that runs read on its own goroutine so the
// read loop stays free to receive cancel requests.
func (h *ReaderHandler) handleRead(op, responseType string, read readFunc) HandlerFunc {
	return func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		opts, err := decodeReadOptions(req.Payload)
		if err != nil {
			return client.Send(protocol.WebSocketResponse{
				ID:    req.ID,
				Type:  responseType,
				Error: string(protocol.ErrInvalidArguments),
			})
		}

		go func() {
			started := time.Now()
			result, err := read(ctx, opts)
			if h.metrics != nil {
				h.metrics.ObserveRead(op, "websocket", started, result, err)
			}

			var sendErr error
			switch {
			case errors.Is(err, nfc.ErrSessionBusy):
				sendErr = client.SendError(req.ID, protocol.WSErrSessionBusy, err.Error())
			case err != nil:
				sendErr = client.Send(protocol.WebSocketResponse{
					ID:    req.ID,
					Type:  responseType,
					Error: string(nfc.ErrorCodeOf(err)),
				})
			default:
				sendErr = client.Send(protocol.WebSocketResponse{
					ID:      req.ID,
					Type:    responseType,
					Success: true,
					Payload: result,
				})
			}
			if sendErr != nil {
				log.WithFields(log.Fields{"component": "server", "client": client.ID(), "op": op}).
					Debugf("Failed to deliver result: %v", sendErr)
			}
		}()
		return nil
	}
}

func (h *ReaderHandler) handleCancel(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	cancelled := h.reader.Cancel()
	return client.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.WSTypeCancelResponse,
		Success: true,
		Payload: map[string]bool{"cancelled": cancelled},
	})
}

func (h *ReaderHandler) forwardStatus(ctx context.Context, s HandlerServer) {
	updates := h.reader.StatusUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			s.BroadcastSessionStatus(status)
		}
	}
}

// decodeReadOptions converts a generic request payload into ReadOptions.
func decodeReadOptions(payload map[string]any) (protocol.ReadOptions, error) {
	var opts protocol.ReadOptions
	if payload == nil {
		return opts, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return opts, fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode read options: %w", err)
	}
	return opts, nil
}

// sessionStatusPayload renders a reader transition for the wire.
func sessionStatusPayload(status nfc.SessionStatus) protocol.WebSocketEvent {
	return protocol.WebSocketEvent{
		ID:   status.SessionID,
		Type: protocol.WSTypeSessionStatus,
		Payload: protocol.SessionStatusPayload{
			State:   string(status.State),
			Message: status.Message,
			TagType: status.TagType,
			Reason:  string(status.Reason),
		},
	}
}
