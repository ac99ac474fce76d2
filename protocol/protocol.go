// Package protocol provides the request, result and error types exchanged
// between the reader bridge and scripted application clients.
// This package is designed to be importable without pulling in server dependencies.
package protocol

// ErrorCode is one of the fixed error strings delivered to a caller when a
// read request fails. Clients compare against these values verbatim.
type ErrorCode string

// Error payloads
const (
	ErrUnknown                 ErrorCode = "Unknown Error"
	ErrInvalidArguments        ErrorCode = "Invalid Arguments"
	ErrNFCNotAvailable         ErrorCode = "NFC Not Available"
	ErrNFCConnection           ErrorCode = "NFC Connection Error"
	ErrFeatureNotSupported     ErrorCode = "Feature Not Supported"
	ErrTagNotSupported         ErrorCode = "Unsupported NFC Tag is detected"
	ErrRequestService          ErrorCode = "Request Service Error"
	ErrReadBlockData           ErrorCode = "Read Block Data Error"
	ErrReadBlockDataStatusCode ErrorCode = "Read Block Data Error: Invalid Status Code"
	ErrSessionTimeout          ErrorCode = "NFC Session timed out"
	ErrUnhandled               ErrorCode = "Unhandled NFC error"
)

// AllErrorCodes returns every error payload a read request can produce.
func AllErrorCodes() []ErrorCode {
	return []ErrorCode{
		ErrUnknown,
		ErrInvalidArguments,
		ErrNFCNotAvailable,
		ErrNFCConnection,
		ErrFeatureNotSupported,
		ErrTagNotSupported,
		ErrRequestService,
		ErrReadBlockData,
		ErrReadBlockDataStatusCode,
		ErrSessionTimeout,
		ErrUnhandled,
	}
}

// DefaultScanMessage is the prompt shown while a session waits for a tag
// when the request does not carry its own message.
const DefaultScanMessage = "Bring the NFC tag closer to your Smartphone"

// Tag type values reported in ReadResult.Type.
const (
	TagTypeA = "typeA" // ISO14443 Type A (MIFARE family)
	TagTypeF = "typeF" // Type F (FeliCa)
)

// FeliCa block addressing limits for readBlockData.
const (
	MaxBlockCount = 12 // blocks per Read Without Encryption command
	MaxBlockEnd   = 20 // start+count upper bound
	BlockSize     = 16 // bytes per FeliCa block
)

// ReadOptions is the options record sent with readId and readBlockData.
//
// Start and Count are pointers so that a missing field can be told apart
// from zero; readBlockData requires both.
type ReadOptions struct {
	// Message is the prompt shown while waiting for a tag (optional).
	Message string `json:"message,omitempty"`

	// ServiceCode is the 2-byte FeliCa service code, big-endian as printed
	// in card documentation (e.g. [0x09, 0x0f] for transit history).
	ServiceCode ByteArray `json:"service_code,omitempty"`

	// Start is the first block number to read.
	Start *int `json:"start,omitempty"`

	// Count is the number of blocks to read.
	Count *int `json:"count,omitempty"`
}

// PromptMessage returns the message to display for the session.
func (o ReadOptions) PromptMessage() string {
	if o.Message != "" {
		return o.Message
	}
	return DefaultScanMessage
}

// ReadResult is the success payload of readId and readBlockData.
type ReadResult struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Cancelled bool        `json:"cancelled"`
	Data      []ByteArray `json:"data,omitempty"`
}

// CancelledResult is delivered when the user cancels the session.
func CancelledResult() *ReadResult {
	return &ReadResult{ID: "", Type: "", Cancelled: true}
}
