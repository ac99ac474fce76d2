package nfc

import (
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"
)

// Manager finds and opens readers. An empty device string asks libnfc for
// the first reader it can open.
//
// Example:
//
//	manager := nfc.NewManager()
//	devices, _ := manager.ListDevices()
//	reader, _ := nfc.NewReader(manager, nfc.ReaderConfig{DevicePath: devices[0]})
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}

// NewManager returns the libnfc-backed Manager.
func NewManager() Manager {
	return libnfcManager{}
}

type libnfcManager struct{}

func (libnfcManager) OpenDevice(deviceStr string) (Device, error) {
	dev, err := nfc.Open(deviceStr)
	if err != nil {
		return nil, err
	}
	return NewDevice(dev), nil
}

// ListDevices retries enumeration briefly; USB readers can vanish for a
// moment after a previous handle is closed.
func (libnfcManager) ListDevices() ([]string, error) {
	var err error
	for attempt := 1; attempt <= DeviceEnumRetries; attempt++ {
		var devices []string
		if devices, err = nfc.ListDevices(); err == nil {
			return devices, nil
		}
		logger.WithError(err).WithField("attempt", attempt).Debug("Device enumeration failed")
		time.Sleep(DeviceEnumRetryDelay)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", DeviceEnumRetries, err)
}
