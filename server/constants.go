package server

import "github.com/nedpals/nfc-reader-bridge/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-bridge._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// Route paths
const (
	PathWebSocket = "/ws"
	PathAPIPrefix = "/api/v1"
	PathMetrics   = "/metrics"
	PathCACert    = "/ca.pem"
)

// CORS configuration
var (
	CORSAllowedMethods = []string{"GET", "POST", "OPTIONS"}
	CORSAllowedHeaders = []string{"Accept", "Authorization", "Content-Type", HeaderAPISecret}
)

// HeaderAPISecret carries the API secret on HTTP API requests. WebSocket
// clients pass it as the "secret" query parameter instead.
const HeaderAPISecret = "X-API-Secret"
