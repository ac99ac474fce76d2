package server

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrSessionClaimed is returned when another client holds the bridge.
	ErrSessionClaimed = errors.New("session already claimed by another client")

	// ErrInvalidSecret is returned when the API secret does not match.
	ErrInvalidSecret = errors.New("invalid API secret")
)

// SessionManager hands the WebSocket bridge to one client at a time, first
// come first served, and checks the optional API secret.
type SessionManager struct {
	token     string
	origin    string // Bound origin for the session
	ip        string // Bound IP address for the session
	apiSecret string // Optional API secret for handshake
	mu        sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(apiSecret string) *SessionManager {
	return &SessionManager{apiSecret: apiSecret}
}

// generateSessionToken generates a cryptographically secure random session token
func generateSessionToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate session token: %v", err)
	}
	return fmt.Sprintf("%x", b)
}

// CheckSecret reports whether secret matches the configured API secret.
// Any secret is accepted when none is configured.
func (m *SessionManager) CheckSecret(secret string) bool {
	if m.apiSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(m.apiSecret)) == 1
}

// Acquire claims the bridge and returns a session token.
// origin and remoteAddr are recorded for logging.
func (m *SessionManager) Acquire(secret string, origin string, remoteAddr string) (string, error) {
	if !m.CheckSecret(secret) {
		return "", ErrInvalidSecret
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return "", ErrSessionClaimed
	}

	m.token = generateSessionToken()
	m.origin = origin
	m.ip = remoteAddr
	log.WithFields(log.Fields{
		"component": "server",
		"session":   m.token[:8] + "...",
		"origin":    origin,
		"ip":        remoteAddr,
	}).Info("Session acquired")
	return m.token, nil
}

// Active reports whether a client holds the bridge.
func (m *SessionManager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// Release releases the session if token still owns it.
func (m *SessionManager) Release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.token == token {
		log.WithFields(log.Fields{
			"component": "server",
			"session":   m.token[:8] + "...",
		}).Info("Session released")
		m.token = ""
		m.origin = ""
		m.ip = ""
	}
}
