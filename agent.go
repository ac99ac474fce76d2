package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/certs"
	"github.com/nedpals/nfc-reader-bridge/config"
	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/server"
)

var agentLogger = log.WithField("component", "agent")

// Agent owns one reader and the bridge server in front of it.
type Agent struct {
	Config  config.Config
	Manager nfc.Manager

	mu     sync.Mutex
	reader *nfc.Reader
	server *server.Server
	cancel context.CancelFunc
	done   chan error
}

func NewAgent(cfg config.Config, manager nfc.Manager) *Agent {
	return &Agent{Config: cfg, Manager: manager}
}

// Start opens the reader and serves the bridge in the background. Done
// reports when serving ends.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return errors.New("agent is already running")
	}

	reader, err := nfc.NewReader(a.Manager, nfc.ReaderConfig{
		DevicePath:     a.Config.Device,
		SessionTimeout: a.Config.SessionTimeout,
		PollInterval:   a.Config.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("initialize NFC reader: %w", err)
	}

	var store *certs.Store
	if a.Config.EnableTLS {
		store = certs.NewStore(a.Config.ConfigDir)
	}

	srv, err := server.New(server.Config{
		Reader:         reader,
		Host:           a.Config.Host,
		Port:           a.Config.Port,
		APISecret:      a.Config.APISecret,
		AllowedOrigins: a.Config.AllowedOrigins,
		RateLimit:      a.Config.RateLimit,
		EnableMDNS:     a.Config.EnableMDNS,
		TLS:            store,
	})
	if err != nil {
		reader.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
		close(done)
	}()

	a.reader, a.server = reader, srv
	a.cancel, a.done = cancel, done
	agentLogger.WithField("device", a.Config.Device).Info("Agent started")
	return nil
}

// Done returns a channel yielding the server's exit error, or nil when the
// agent is not running.
func (a *Agent) Done() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Stop shuts the server down and releases the reader.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		agentLogger.Debug("Agent is not running")
		return
	}

	agentLogger.Info("Stopping agent...")
	a.cancel()
	<-a.done
	a.reader.Close()

	a.reader, a.server = nil, nil
	a.cancel, a.done = nil, nil
	agentLogger.Info("Agent stopped successfully")
}

// SwitchDevice restarts the agent on devicePath when it is running.
func (a *Agent) SwitchDevice(devicePath string) error {
	running := a.Running()
	if running {
		a.Stop()
	}
	a.mu.Lock()
	a.Config.Device = devicePath
	a.mu.Unlock()
	if !running {
		return nil
	}
	return a.Start()
}

func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Reader returns the running reader, or nil.
func (a *Agent) Reader() *nfc.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reader
}

// BridgeURL is the WebSocket address clients on the LAN should dial.
func (a *Agent) BridgeURL() string {
	scheme := "ws"
	if a.Config.EnableTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, a.displayHost(), a.Config.Port, server.PathWebSocket)
}

// CACertURL is where devices fetch the local CA, or "" without TLS.
func (a *Agent) CACertURL() string {
	if !a.Config.EnableTLS {
		return ""
	}
	return fmt.Sprintf("https://%s:%d%s", a.displayHost(), a.Config.Port, server.PathCACert)
}

func (a *Agent) displayHost() string {
	if a.Config.Host != "" {
		return a.Config.Host
	}
	if addrs, err := certs.LANAddresses(); err == nil && len(addrs) > 0 {
		return addrs[0]
	}
	return "localhost"
}
