package nfc

import (
	"fmt"
	"sync"
)

// MockManager stands in for libnfc. OpenDevice hands out the device
// registered for the path in Devices, falling back to MockDevice.
//
// Example:
//
//	manager := NewMockManager()
//	manager.MockDevice.SetTags([]Tag{NewMockMiFareTag("04a1b2c3d4e5f6")})
//	reader, _ := NewReader(manager, ReaderConfig{})
type MockManager struct {
	// DevicesList is returned by ListDevices.
	DevicesList []string
	// ListDevicesError, if set, fails ListDevices.
	ListDevicesError error

	// MockDevice is opened for any path without an entry in Devices.
	MockDevice *MockDevice
	// Devices maps connection strings to their own mock readers.
	Devices map[string]*MockDevice
	// OpenDeviceError, if set, fails OpenDevice.
	OpenDeviceError error

	mu    sync.Mutex
	calls []string
}

// NewMockManager returns a manager listing one reader, "mock:usb:001".
func NewMockManager() *MockManager {
	return &MockManager{
		DevicesList: []string{"mock:usb:001"},
		MockDevice:  NewMockDevice(),
	}
}

func (m *MockManager) OpenDevice(deviceStr string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, fmt.Sprintf("OpenDevice(%s)", deviceStr))
	if m.OpenDeviceError != nil {
		return nil, m.OpenDeviceError
	}
	if dev, ok := m.Devices[deviceStr]; ok {
		return dev, nil
	}
	if m.MockDevice == nil {
		m.MockDevice = NewMockDevice()
	}
	return m.MockDevice, nil
}

func (m *MockManager) ListDevices() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "ListDevices")
	if m.ListDevicesError != nil {
		return nil, m.ListDevicesError
	}
	return append([]string(nil), m.DevicesList...), nil
}

// GetCallLog returns the calls made so far, oldest first.
func (m *MockManager) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
