package nfc

import (
	"errors"
	"strings"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// ReaderError is the error returned by Reader operations. Its Code is one of
// the fixed protocol.ErrorCode strings and is what callers receive.
type ReaderError struct {
	Code  protocol.ErrorCode
	Op    string // Operation that failed (e.g., "readId", "readBlockData")
	Cause error  // Underlying host or device error
}

func (e *ReaderError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Code))
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ReaderError) Unwrap() error {
	return e.Cause
}

// Is matches any ReaderError with the same code, so errors.Is can be used
// against the exported sentinels.
func (e *ReaderError) Is(target error) bool {
	if t, ok := target.(*ReaderError); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArguments    = &ReaderError{Code: protocol.ErrInvalidArguments}
	ErrNFCNotAvailable     = &ReaderError{Code: protocol.ErrNFCNotAvailable}
	ErrConnection          = &ReaderError{Code: protocol.ErrNFCConnection}
	ErrFeatureNotSupported = &ReaderError{Code: protocol.ErrFeatureNotSupported}
	ErrTagNotSupported     = &ReaderError{Code: protocol.ErrTagNotSupported}
	ErrRequestService      = &ReaderError{Code: protocol.ErrRequestService}
	ErrReadBlockData       = &ReaderError{Code: protocol.ErrReadBlockData}
	ErrInvalidStatusCode   = &ReaderError{Code: protocol.ErrReadBlockDataStatusCode}
	ErrReaderTimeout       = &ReaderError{Code: protocol.ErrSessionTimeout}
	ErrUnhandled           = &ReaderError{Code: protocol.ErrUnhandled}
)

func newReaderError(code protocol.ErrorCode, op string, cause error) *ReaderError {
	return &ReaderError{Code: code, Op: op, Cause: cause}
}

// ErrorCodeOf extracts the protocol error code from err. Errors that did not
// originate from a Reader map to protocol.ErrUnknown.
func ErrorCodeOf(err error) protocol.ErrorCode {
	if err == nil {
		return ""
	}
	var readerErr *ReaderError
	if errors.As(err, &readerErr) {
		return readerErr.Code
	}
	return protocol.ErrUnknown
}
