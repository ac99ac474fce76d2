package nfc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

func TestReaderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ReaderError
		expected string
	}{
		{
			name:     "code only",
			err:      &ReaderError{Code: protocol.ErrUnhandled},
			expected: "Unhandled NFC error",
		},
		{
			name:     "with op",
			err:      &ReaderError{Code: protocol.ErrInvalidArguments, Op: "readBlockData"},
			expected: "readBlockData: Invalid Arguments",
		},
		{
			name: "with op and cause",
			err: &ReaderError{
				Code:  protocol.ErrNFCConnection,
				Op:    "readId",
				Cause: errors.New("tag lost"),
			},
			expected: "readId: NFC Connection Error: tag lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ReaderError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReaderError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := newReaderError(protocol.ErrReadBlockData, opReadBlockData, cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if unwrapped := (&ReaderError{Code: protocol.ErrUnhandled}).Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestReaderError_Is(t *testing.T) {
	err := newReaderError(protocol.ErrRequestService, opReadBlockData, errors.New("no node"))
	wrapped := fmt.Errorf("bridge: %w", err)

	if !errors.Is(wrapped, ErrRequestService) {
		t.Error("expected wrapped error to match ErrRequestService")
	}
	if errors.Is(wrapped, ErrReadBlockData) {
		t.Error("did not expect match with ErrReadBlockData")
	}
	if errors.Is(errors.New("Request Service Error"), ErrRequestService) {
		t.Error("plain error with same text must not match")
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.ErrorCode
	}{
		{"nil", nil, ""},
		{"reader error", ErrReaderTimeout, protocol.ErrSessionTimeout},
		{"wrapped", fmt.Errorf("x: %w", ErrFeatureNotSupported), protocol.ErrFeatureNotSupported},
		{"foreign", errors.New("boom"), protocol.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCodeOf(tt.err); got != tt.want {
				t.Errorf("ErrorCodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsIOError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrIO, true},
		{fmt.Errorf("poll: %w", ErrIO), true},
		{errors.New("libnfc: Input / Output Error"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("no tag"), false},
	}
	for _, tt := range tests {
		if got := IsIOError(tt.err); got != tt.want {
			t.Errorf("IsIOError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
