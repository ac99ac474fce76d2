package nfc

import (
	"bytes"
	"fmt"
	"sync"
)

// MockDevice is a test implementation of Device that simulates NFC hardware.
//
// MockDevice allows testing reader sessions without physical hardware by
// simulating device behavior, tag arrival and raw frame exchange.
//
// Example:
//
//	mock := NewMockDevice()
//	mock.TagsAfterPolls = 2
//	mock.SetTags([]Tag{NewMockFeliCaTag("0114b3a1c2d3e4f5")})
//	tags, _ := mock.Poll() // empty until the third poll
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// TransceiveFunc allows custom transceive behavior for testing
	// If nil, returns TransceiveResponse or TransceiveError
	TransceiveFunc func([]byte) ([]byte, error)

	// TransceiveResponse is the default response for Transceive calls
	TransceiveResponse []byte

	// TransceiveError, if set, will be returned by Transceive()
	TransceiveError error

	// PollFunc allows custom Poll behavior for testing
	// If nil, returns Tags or PollError
	PollFunc func() ([]Tag, error)

	// Tags is the list of tags returned by Poll()
	Tags []Tag

	// TagsAfterPolls delays tag arrival: the first TagsAfterPolls polls find
	// an empty field.
	TagsAfterPolls int

	// PollError, if set, will be returned by Poll()
	PollError error

	// Polls counts Poll calls
	Polls int

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}

	m.IsOpen = false
	return m.CloseError
}

// InitiatorInit simulates device initialization. A closed mock reopens, as
// a real reader does when the manager opens it again.
func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")

	if m.InitError != nil {
		return m.InitError
	}
	m.IsOpen = true
	return nil
}

// String returns the simulated device name.
func (m *MockDevice) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceName
}

// Connection returns the simulated connection string.
func (m *MockDevice) Connection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceConnection
}

// Transceive simulates data transmission with the device.
func (m *MockDevice) Transceive(txData []byte) ([]byte, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Transceive(%d bytes)", len(txData)))
	open := m.IsOpen
	fn, resp, err := m.TransceiveFunc, m.TransceiveResponse, m.TransceiveError
	m.mu.Unlock()

	if !open {
		return nil, ErrDeviceClosed
	}
	if fn != nil {
		return fn(txData)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Poll simulates polling the field.
func (m *MockDevice) Poll() ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Poll")
	m.Polls++

	if !m.IsOpen {
		return nil, ErrDeviceClosed
	}

	if m.PollFunc != nil {
		return m.PollFunc()
	}

	if m.PollError != nil {
		return nil, m.PollError
	}

	if m.Polls <= m.TagsAfterPolls {
		return nil, nil
	}

	// Return a copy to prevent external modification
	tagsCopy := make([]Tag, len(m.Tags))
	copy(tagsCopy, m.Tags)
	return tagsCopy, nil
}

// PollCount returns the number of Poll calls so far.
func (m *MockDevice) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Polls
}

// SetTags sets the tags that will be returned by Poll().
func (m *MockDevice) SetTags(tags []Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Tags = tags
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// FeliCaCard simulates the FeliCa command set of a card on the wire. Plug
// Respond into MockDevice.TransceiveFunc to exercise frame encoding.
type FeliCaCard struct {
	IDm []byte
	// Services maps a little-endian service code to its blocks.
	Services map[[2]byte][][]byte
	// Status overrides the read status flags when non-zero.
	Status FeliCaStatus
}

// Respond answers a Request Service or Read Without Encryption frame.
func (c *FeliCaCard) Respond(frame []byte) ([]byte, error) {
	if len(frame) < 2+feliCaIDmLen || int(frame[0]) != len(frame) {
		return nil, fmt.Errorf("mock card: malformed frame % x", frame)
	}
	if !bytes.Equal(frame[2:2+feliCaIDmLen], c.IDm) {
		return nil, ErrTimeout // another card would not answer
	}
	body := frame[2+feliCaIDmLen:]

	switch frame[1] {
	case feliCaCmdRequestService:
		resp := []byte{0, feliCaResRequestService}
		resp = append(resp, c.IDm...)
		n := int(body[0])
		resp = append(resp, byte(n))
		for i := 0; i < n; i++ {
			code := [2]byte{body[1+2*i], body[2+2*i]}
			if _, ok := c.Services[code]; ok {
				resp = append(resp, 0x00, 0x00)
			} else {
				resp = append(resp, NodeNotFound...)
			}
		}
		resp[0] = byte(len(resp))
		return resp, nil

	case feliCaCmdReadWithoutEncryption:
		m := int(body[0])
		code := [2]byte{body[1], body[2]}
		blockList := body[1+2*m:]
		n := int(blockList[0])

		resp := []byte{0, feliCaResReadWithoutEncryption}
		resp = append(resp, c.IDm...)
		blocks, ok := c.Services[code]
		if c.Status != (FeliCaStatus{}) || !ok {
			status := c.Status
			if status == (FeliCaStatus{}) {
				status = FeliCaStatus{Flag1: 0x01, Flag2: 0xa6}
			}
			resp = append(resp, status.Flag1, status.Flag2)
			resp[0] = byte(len(resp))
			return resp, nil
		}
		resp = append(resp, 0x00, 0x00, byte(n))
		for i := 0; i < n; i++ {
			num := int(blockList[2+2*i])
			if num >= len(blocks) {
				return nil, fmt.Errorf("mock card: block %d out of range", num)
			}
			resp = append(resp, blocks[num]...)
		}
		resp[0] = byte(len(resp))
		return resp, nil
	}
	return nil, fmt.Errorf("mock card: unknown command 0x%02x", frame[1])
}
