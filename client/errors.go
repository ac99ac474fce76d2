package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

const writeTimeout = 5 * time.Second

// Error is a failure reported by the bridge. Code holds the fixed read
// error string for rejected reads; Transport holds the transport code
// (e.g. SESSION_BUSY) when the request never reached the reader.
type Error struct {
	Code      protocol.ErrorCode
	Transport string
	Message   string
}

func (e *Error) Error() string {
	if e.Transport != "" {
		if e.Message != "" {
			return fmt.Sprintf("bridge: %s: %s", e.Transport, e.Message)
		}
		return "bridge: " + e.Transport
	}
	return string(e.Code)
}

// Is matches errors with the same Code and Transport.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Transport == t.Transport
}

// Code returns the read error string carried by err, or "" when err is not
// a read failure reported by the bridge.
func Code(err error) protocol.ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsSessionBusy reports whether the bridge rejected the request because
// another read was in flight.
func IsSessionBusy(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transport == protocol.WSErrSessionBusy
}

func responseError(resp response) error {
	if resp.Type == protocol.WSTypeError {
		var payload protocol.ErrorPayload
		json.Unmarshal(resp.Payload, &payload)
		return &Error{Transport: payload.Code, Message: resp.Error}
	}
	if !resp.Success {
		code := protocol.ErrorCode(resp.Error)
		if code == "" {
			code = protocol.ErrUnknown
		}
		return &Error{Code: code}
	}
	return nil
}
