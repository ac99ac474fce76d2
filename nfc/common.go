package nfc

import (
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "nfc")

// Timing constants for sessions and device access
const (
	DefaultSessionTimeout = 60 * time.Second // matches the host framework's reader session limit
	DefaultPollInterval   = 150 * time.Millisecond
	DeviceEnumRetries     = 3 // Number of retries for device enumeration
	DeviceEnumRetryDelay  = 100 * time.Millisecond
	TransceiveTimeout     = 500 // milliseconds, passed to libnfc
)

// Sentinel errors for device operations
var (
	// ErrTimeout indicates a timeout occurred during device communication
	ErrTimeout = errors.New("device operation timed out")

	// ErrDeviceClosed indicates the device connection was closed
	ErrDeviceClosed = errors.New("device closed")

	// ErrIO indicates an input/output error with the device
	ErrIO = errors.New("device I/O error")

	// ErrNoDevice indicates no reader hardware could be found or opened
	ErrNoDevice = errors.New("no NFC device available")

	// ErrSessionBusy is returned when a read is requested while another
	// session is still in flight.
	ErrSessionBusy = errors.New("a reader session is already in progress")
)

// IsIOError reports whether err is a device input/output failure.
func IsIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIO) {
		return true
	}
	// libnfc reports errors as strings
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "input / output error") ||
		strings.Contains(errStr, "i/o error") ||
		strings.Contains(errStr, "broken pipe")
}

// IsTimeoutError reports whether err is a device timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out")
}

// IsDeviceClosedError reports whether err means the device went away.
func IsDeviceClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeviceClosed) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device closed") || strings.Contains(errStr, "no such device")
}
