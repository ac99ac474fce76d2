package protocol

// APIErrorResponse is the body returned by the HTTP read endpoints on failure.
type APIErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HistoryRequest is the body of POST /api/v1/history.
type HistoryRequest struct {
	Block ByteArray `json:"block"`
}

// HistoryResponse is the body returned by POST /api/v1/history.
type HistoryResponse struct {
	History History `json:"history"`
}

// DevicesResponse is the body returned by GET /api/v1/devices.
type DevicesResponse struct {
	Devices []string `json:"devices"`
}

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"` // RFC3339 format
	SessionActive bool   `json:"sessionActive"`
}
