package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// apiRoutes mounts the HTTP API. Read endpoints block until the session
// ends; the request context cancels the session when the caller leaves.
func (s *Server) apiRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/history", s.handleHistory)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Get("/devices", s.handleDevices)
		r.Post("/readId", s.handleHTTPRead(protocol.WSTypeReadID, s.reader.ReadID))
		r.Post("/readBlockData", s.handleHTTPRead(protocol.WSTypeReadBlockData, s.reader.ReadBlockData))
		r.Post("/cancel", s.handleHTTPCancel)
	})
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.CheckSecret(requestSecret(r)) {
			writeJSON(w, http.StatusUnauthorized, protocol.APIErrorResponse{Error: ErrInvalidSecret.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestSecret reads the API secret from the header or the query string.
func requestSecret(r *http.Request) string {
	if secret := r.Header.Get(HeaderAPISecret); secret != "" {
		return secret
	}
	return r.URL.Query().Get("secret")
}

func (s *Server) handleHTTPRead(op string, read readFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts protocol.ReadOptions
		if err := decodeBody(r, &opts); err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.APIErrorResponse{Error: string(protocol.ErrInvalidArguments)})
			return
		}

		started := time.Now()
		result, err := read(r.Context(), opts)
		s.metrics.ObserveRead(op, "http", started, result, err)

		if err != nil {
			if errors.Is(err, nfc.ErrSessionBusy) {
				writeJSON(w, http.StatusConflict, protocol.APIErrorResponse{Error: err.Error(), Code: protocol.WSErrSessionBusy})
				return
			}
			code := nfc.ErrorCodeOf(err)
			writeJSON(w, statusForCode(code), protocol.APIErrorResponse{Error: string(code)})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleHTTPCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.reader.Cancel()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req protocol.HistoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.APIErrorResponse{Error: string(protocol.ErrInvalidArguments)})
		return
	}
	history, err := protocol.DecodeHistory(req.Block)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.APIErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.HistoryResponse{History: history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:        "ok",
		Version:       buildinfo.Version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		SessionActive: s.reader.SessionActive(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.reader.ListDevices()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, protocol.APIErrorResponse{Error: string(protocol.ErrNFCNotAvailable)})
		return
	}
	if devices == nil {
		devices = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.DevicesResponse{Devices: devices})
}

// statusForCode maps a read error payload to an HTTP status.
func statusForCode(code protocol.ErrorCode) int {
	switch code {
	case protocol.ErrInvalidArguments:
		return http.StatusBadRequest
	case protocol.ErrNFCNotAvailable:
		return http.StatusServiceUnavailable
	case protocol.ErrSessionTimeout:
		return http.StatusRequestTimeout
	case protocol.ErrNFCConnection,
		protocol.ErrFeatureNotSupported,
		protocol.ErrTagNotSupported,
		protocol.ErrRequestService,
		protocol.ErrReadBlockData,
		protocol.ErrReadBlockDataStatusCode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("component", "server").Debugf("Failed to write response: %v", err)
	}
}
