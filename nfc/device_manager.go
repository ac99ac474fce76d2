package nfc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reconnection timing
const (
	ReconnectDelay            = 500 * time.Millisecond
	MaxReconnectTries         = 3
	DeviceErrorCooldownPeriod = 5 * time.Second
)

// DeviceManager keeps a single NFC device open between reader sessions and
// recovers from device errors. The device is opened lazily on first use.
type DeviceManager struct {
	manager    Manager
	device     Device
	devicePath string
	hasDevice  bool

	cooldownUntil time.Time
	clock         Clock

	mu sync.RWMutex
}

// NewDeviceManager creates a new DeviceManager for managing an NFC device connection.
// An empty devicePath selects the first device the manager lists. A nil
// clock uses real time.
func NewDeviceManager(manager Manager, devicePath string, clock Clock) *DeviceManager {
	if clock == nil {
		clock = NewRealClock()
	}
	return &DeviceManager{
		manager:    manager,
		devicePath: devicePath,
		clock:      clock,
	}
}

// Device returns the current active device, or nil if not connected.
func (dm *DeviceManager) Device() Device {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.device
}

// HasDevice returns true if a device is currently connected.
func (dm *DeviceManager) HasDevice() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.hasDevice
}

// InCooldown returns true while the manager refuses to reopen the device
// after a hardware fault.
func (dm *DeviceManager) InCooldown() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.clock.Now().Before(dm.cooldownUntil)
}

// DevicePath returns the path of the device being managed.
func (dm *DeviceManager) DevicePath() string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.devicePath
}

// ListDevices lists the connection strings of every attached reader.
func (dm *DeviceManager) ListDevices() ([]string, error) {
	return dm.manager.ListDevices()
}

// Acquire returns a connected, initialized device, opening it if needed.
func (dm *DeviceManager) Acquire() (Device, error) {
	if err := dm.TryConnect(); err != nil {
		return nil, err
	}
	dev := dm.Device()
	if dev == nil {
		return nil, ErrNoDevice
	}
	return dev, nil
}

// TryConnect attempts to connect to the device. If the device is already connected
// and responsive, it returns nil. Otherwise, it attempts to open and initialize the device.
func (dm *DeviceManager) TryConnect() error {
	if dm.InCooldown() {
		return fmt.Errorf("device in cooldown: %w", ErrNoDevice)
	}

	dm.mu.Lock()
	hasDev := dm.hasDevice
	currentDevice := dm.device
	dm.mu.Unlock()

	if hasDev && currentDevice != nil {
		// Quick check if device is responsive
		initErr := currentDevice.InitiatorInit()
		if initErr == nil {
			return nil
		}
		logger.WithError(initErr).Warn("Device was marked connected, but init failed; reconnecting")
		dm.mu.Lock()
		currentDevice.Close() // Ignore error
		dm.device = nil
		dm.hasDevice = false
		dm.mu.Unlock()
	}

	devicePathToConnect := dm.DevicePath()
	if devicePathToConnect == "" {
		devices, errList := dm.manager.ListDevices()
		if errList != nil {
			return fmt.Errorf("error listing NFC devices: %w", errList)
		}
		if len(devices) == 0 {
			return ErrNoDevice
		}
		devicePathToConnect = devices[0]
		logger.WithField("device", devicePathToConnect).Debug("No specific device path, trying first available")
	}

	newDevice, errOpen := dm.manager.OpenDevice(devicePathToConnect)
	if errOpen != nil {
		return fmt.Errorf("failed to open device %s: %w", devicePathToConnect, errOpen)
	}

	if errInit := newDevice.InitiatorInit(); errInit != nil {
		newDevice.Close()
		return fmt.Errorf("failed to initialize device %s: %w", devicePathToConnect, errInit)
	}

	dm.mu.Lock()
	dm.device = newDevice
	dm.hasDevice = true
	dm.mu.Unlock()

	logger.WithFields(log.Fields{
		"device":     newDevice.String(),
		"connection": newDevice.Connection(),
	}).Info("Connected to NFC device")
	return nil
}

// Reconnect closes the device and reopens it with linear backoff.
func (dm *DeviceManager) Reconnect(ctx context.Context) error {
	dm.Close()

	var lastErr error
	for attempt := 1; attempt <= MaxReconnectTries; attempt++ {
		lastErr = dm.TryConnect()
		if lastErr == nil {
			return nil
		}
		logger.WithError(lastErr).WithField("attempt", attempt).Warn("Reconnect attempt failed")

		select {
		case <-ctx.Done():
			return fmt.Errorf("reconnection aborted: %w", ctx.Err())
		case <-time.After(ReconnectDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("reconnect failed after %d attempts: %w", MaxReconnectTries, lastErr)
}

// Close closes the current device connection.
func (dm *DeviceManager) Close() {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.hasDevice && dm.device != nil {
		if err := dm.device.Close(); err != nil {
			logger.WithError(err).Warn("Error closing device")
		}
		dm.device = nil
		dm.hasDevice = false
	}
}

// HandleError drops the device after a hardware-level failure so that the
// next session reopens it. Errors from ACR122-style readers that need time
// to recover also start a cooldown. It reports whether the device was dropped.
func (dm *DeviceManager) HandleError(err error) bool {
	if err == nil {
		return false
	}
	if !IsIOError(err) && !IsDeviceClosedError(err) && !IsTimeoutError(err) {
		return false
	}

	logger.WithError(err).Warn("Device error, closing device")
	dm.Close()

	errStr := err.Error()
	if strings.Contains(errStr, "Operation not permitted") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "RDR_to_PC_DataBlock") {
		dm.mu.Lock()
		dm.cooldownUntil = dm.clock.Now().Add(DeviceErrorCooldownPeriod)
		dm.mu.Unlock()
		logger.WithField("cooldown", DeviceErrorCooldownPeriod).Warn("ACR122-like error, entering cooldown")
	}
	return true
}
