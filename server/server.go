// Package server exposes an nfc.Reader to scripted application clients
// over a WebSocket bridge and a small HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/grandcat/zeroconf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/certs"
	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

var logger = log.WithField("component", "server")

// ReaderService is the reader surface the server needs. *nfc.Reader
// implements it.
type ReaderService interface {
	ReadID(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error)
	ReadBlockData(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error)
	Cancel() bool
	SessionActive() bool
	ListDevices() ([]string, error)
	StatusUpdates() <-chan nfc.SessionStatus
	GetDeviceStatus() nfc.DeviceStatus
}

// Config configures a Server.
type Config struct {
	Reader ReaderService

	// Host is the listen address; empty listens on all interfaces.
	Host string
	Port int

	// APISecret, when set, must accompany WebSocket handshakes and
	// API read requests.
	APISecret string

	// AllowedOrigins lists CORS origins; empty allows any.
	AllowedOrigins []string

	// RateLimit caps API requests per client IP per minute. Zero disables it.
	RateLimit int

	EnableMDNS bool

	// TLS serves HTTPS/WSS with certificates from this store when non-nil.
	TLS *certs.Store
}

// Server is the reader bridge.
type Server struct {
	config   Config
	reader   ReaderService
	registry *HandlerRegistry
	clients  *ClientManager
	sessions *SessionManager
	metrics  *Metrics
	router   chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
	mdnsServer *zeroconf.Server
}

// New creates a server, registers the reader handlers and starts their
// lifecycle goroutines. They run until Stop.
func New(config Config) (*Server, error) {
	if config.Reader == nil {
		return nil, errors.New("server: reader is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		reader:   config.Reader,
		registry: NewHandlerRegistry(),
		clients:  NewClientManager(),
		sessions: NewSessionManager(config.APISecret),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}

	NewReaderHandler(s.reader, s.metrics).Register(s)
	s.router = s.routes()
	s.registry.StartLifecycleHandlers(s.ctx)
	return s, nil
}

// Handle implements HandlerServer.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.registry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.registry.RegisterLifecycle(start)
}

// BroadcastSessionStatus implements HandlerServer.
func (s *Server) BroadcastSessionStatus(status nfc.SessionStatus) {
	s.clients.Broadcast(sessionStatusPayload(status))
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metric set.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger())
	r.Use(middleware.Recoverer)
	r.Use(newCORS(s.config.AllowedOrigins).Handler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s %s running\n", buildinfo.DisplayName, buildinfo.Version)
	})
	r.Get(PathWebSocket, s.handleWebSocket)
	r.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	if s.config.TLS != nil {
		r.Method(http.MethodGet, PathCACert, s.config.TLS.CACertHandler())
	}

	r.Route(PathAPIPrefix, func(r chi.Router) {
		if s.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.config.RateLimit, 1*time.Minute))
		}
		s.apiRoutes(r)
	})
	return r
}

// handleWebSocket claims the bridge for the caller and serves it until the
// connection drops. A read still running when the client leaves is
// cancelled.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := s.sessions.Acquire(requestSecret(r), r.Header.Get("Origin"), r.RemoteAddr)
	switch {
	case errors.Is(err, ErrInvalidSecret):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	case errors.Is(err, ErrSessionClaimed):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.sessions.Release(token)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(conn)
	s.clients.Register(client)
	s.metrics.connected.Inc()
	logger.WithFields(log.Fields{"client": client.ID(), "remote": r.RemoteAddr}).Info("Client connected")

	defer func() {
		s.clients.Unregister(client)
		s.metrics.connected.Dec()
		client.close()
		logger.WithField("client", client.ID()).Info("Client disconnected")
	}()

	s.serveClient(s.ctx, client)
}

// Start advertises the bridge and serves until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var certFile, keyFile string
	if s.config.TLS != nil {
		hosts, err := certs.Hosts(s.config.Host)
		if err != nil {
			logger.WithError(err).Warn("Failed to list LAN addresses")
		}
		paths, err := s.config.TLS.Ensure(hosts)
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificates: %w", err)
		}
		certFile, keyFile = paths.Cert, paths.Key
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	if s.config.EnableMDNS {
		if err := s.startMDNS(); err != nil {
			logger.WithError(err).Warn("Auto-discovery unavailable, continuing without mDNS")
		}
	}

	status := s.reader.GetDeviceStatus()
	logger.WithFields(log.Fields{"addr": addr, "tls": certFile != "", "device": status.Message}).Info("Starting server")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" {
			err = httpServer.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err, ok := <-errCh:
		s.Stop()
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Stop cancels in-flight reads, disconnects clients and shuts the listener
// down.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.stopMDNS()
	s.mu.Unlock()

	s.clients.CloseAll()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Server shutdown error")
		}
		logger.Info("Server stopped")
	}
}
