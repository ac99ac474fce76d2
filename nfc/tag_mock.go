package nfc

import (
	"sync"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// MockTag is a test implementation of Tag that simulates a MIFARE tag, or an
// unsupported tag when TagKind is TagKindUnknown.
//
// Example:
//
//	tag := NewMockMiFareTag("04a1b2c3d4e5f6")
//	tag.ConnectError = errors.New("tag lost")
type MockTag struct {
	// TagUID is the hex UID returned by UID()
	TagUID string

	// TagType is the type string returned by Type()
	TagType string

	// TagKind is returned by Kind()
	TagKind TagKind

	// TagFamily is returned by Family()
	TagFamily string

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// DisconnectError, if set, will be returned by Disconnect()
	DisconnectError error

	// IsConnected tracks whether the tag is currently connected
	IsConnected bool

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockMiFareTag creates a MIFARE Classic 1K mock with the given hex UID.
func NewMockMiFareTag(uid string) *MockTag {
	return &MockTag{
		TagUID:    uid,
		TagType:   "MIFARE Classic 1K",
		TagKind:   TagKindMiFare,
		TagFamily: FamilyClassic,
	}
}

// NewMockUnsupportedTag creates a tag the reader cannot serve.
func NewMockUnsupportedTag(uid string) *MockTag {
	return &MockTag{
		TagUID:  uid,
		TagType: "ISO14443B",
		TagKind: TagKindUnknown,
	}
}

func (t *MockTag) UID() string    { return t.TagUID }
func (t *MockTag) Type() string   { return t.TagType }
func (t *MockTag) Kind() TagKind  { return t.TagKind }
func (t *MockTag) Family() string { return t.TagFamily }

// Identifier decodes TagUID.
func (t *MockTag) Identifier() []byte {
	id, _ := protocol.ParseID(t.TagUID)
	return id
}

// Connect simulates selecting the tag.
func (t *MockTag) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CallLog = append(t.CallLog, "Connect")
	if t.ConnectError != nil {
		return t.ConnectError
	}
	t.IsConnected = true
	return nil
}

// Disconnect simulates releasing the tag.
func (t *MockTag) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CallLog = append(t.CallLog, "Disconnect")
	t.IsConnected = false
	return t.DisconnectError
}

// GetCallLog returns a copy of the call log for verification.
func (t *MockTag) GetCallLog() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	logCopy := make([]string, len(t.CallLog))
	copy(logCopy, t.CallLog)
	return logCopy
}

// MockFeliCaTag is a test implementation of FeliCaTag.
//
// Example:
//
//	tag := NewMockFeliCaTag("0114b3a1c2d3e4f5")
//	tag.Blocks = [][]byte{make([]byte, 16)}
type MockFeliCaTag struct {
	MockTag

	// SysCode is returned by SystemCode()
	SysCode []byte

	// KeyVersions is returned by RequestService(). Defaults to 00 00 per node.
	KeyVersions [][]byte

	// RequestServiceError, if set, will be returned by RequestService()
	RequestServiceError error

	// Status is returned by ReadWithoutEncryption()
	Status FeliCaStatus

	// Blocks holds block data indexed by block number
	Blocks [][]byte

	// ReadError, if set, will be returned by ReadWithoutEncryption()
	ReadError error

	// RequestedNodes and ReadServices record the last codes sent
	RequestedNodes [][]byte
	ReadServices   [][]byte
	ReadBlocks     []uint8
}

// NewMockFeliCaTag creates a FeliCa mock with the given hex IDm and the
// common transit system code 0003.
func NewMockFeliCaTag(idm string) *MockFeliCaTag {
	return &MockFeliCaTag{
		MockTag: MockTag{
			TagUID:  idm,
			TagType: "FeliCa",
			TagKind: TagKindFeliCa,
		},
		SysCode: []byte{0x00, 0x03},
	}
}

func (t *MockFeliCaTag) IDm() []byte        { return t.Identifier() }
func (t *MockFeliCaTag) SystemCode() []byte { return t.SysCode }

// RequestService returns KeyVersions or one 00 00 per node.
func (t *MockFeliCaTag) RequestService(nodeCodes [][]byte) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CallLog = append(t.CallLog, "RequestService")
	t.RequestedNodes = nodeCodes
	if t.RequestServiceError != nil {
		return nil, t.RequestServiceError
	}
	if t.KeyVersions != nil {
		return t.KeyVersions, nil
	}
	versions := make([][]byte, len(nodeCodes))
	for i := range versions {
		versions[i] = []byte{0x00, 0x00}
	}
	return versions, nil
}

// ReadWithoutEncryption returns the requested Blocks.
func (t *MockFeliCaTag) ReadWithoutEncryption(serviceCodes [][]byte, blocks []uint8) (FeliCaStatus, [][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CallLog = append(t.CallLog, "ReadWithoutEncryption")
	t.ReadServices = serviceCodes
	t.ReadBlocks = blocks
	if t.ReadError != nil {
		return FeliCaStatus{}, nil, t.ReadError
	}
	if !t.Status.OK() {
		return t.Status, nil, nil
	}
	out := make([][]byte, 0, len(blocks))
	for _, b := range blocks {
		if int(b) < len(t.Blocks) {
			out = append(out, t.Blocks[b])
		} else {
			out = append(out, make([]byte, protocol.BlockSize))
		}
	}
	return t.Status, out, nil
}
