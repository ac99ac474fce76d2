package protocol

// WebSocket message type constants
const (
	WSTypeReadID                = "readId"
	WSTypeReadBlockData         = "readBlockData"
	WSTypeCancel                = "cancel"
	WSTypeReadIDResponse        = "readIdResponse"
	WSTypeReadBlockDataResponse = "readBlockDataResponse"
	WSTypeCancelResponse        = "cancelResponse"
	WSTypeSessionStatus         = "sessionStatus"
	WSTypeError                 = "error"
)

// Transport error codes carried in the "code" field of an error response.
// These are distinct from the read ErrorCode payloads.
const (
	WSErrParse       = "PARSE_ERROR"
	WSErrUnknownType = "UNKNOWN_TYPE"
	WSErrSessionBusy = "SESSION_BUSY"
)

// Session states reported in SessionStatusPayload.State.
const (
	SessionStateActive      = "active"
	SessionStateTagDetected = "tagDetected"
	SessionStateInvalidated = "invalidated"
)

// WebSocketRequest is an incoming request from a scripted client.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse answers exactly one WebSocketRequest.
// Error holds an ErrorCode string for failed reads.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebSocketEvent is an unsolicited message pushed to the client.
type WebSocketEvent struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SessionStatusPayload reports reader session lifecycle transitions.
type SessionStatusPayload struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
	TagType string `json:"tagType,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ErrorPayload is the payload of a transport-level error response.
type ErrorPayload struct {
	Code string `json:"code"`
}
