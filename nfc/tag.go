package nfc

import "github.com/nedpals/nfc-reader-bridge/protocol"

// TagKind classifies a detected tag by the technology family the reader can
// serve. Only FeliCa and MIFARE tags can be read; anything else is reported as
// unsupported.
type TagKind int

const (
	TagKindUnknown TagKind = iota
	TagKindFeliCa
	TagKindMiFare
)

// ResultType returns the ReadResult type reported for tags of this kind.
func (k TagKind) ResultType() string {
	switch k {
	case TagKindFeliCa:
		return protocol.TagTypeF
	case TagKindMiFare:
		return protocol.TagTypeA
	default:
		return ""
	}
}

func (k TagKind) String() string {
	switch k {
	case TagKindFeliCa:
		return "FeliCa"
	case TagKindMiFare:
		return "MIFARE"
	default:
		return "unknown"
	}
}

// Tag represents an NFC tag found in the field during a reader session.
//
// Example:
//
//	tags, _ := device.Poll()
//	for _, tag := range tags {
//	    fmt.Println(tag.Kind(), tag.UID())
//	}
type Tag interface {
	// UID returns the tag identifier as lowercase hex. For FeliCa this is
	// the current IDm.
	UID() string
	// Type returns a descriptive product name (e.g. "MIFARE Classic 1K").
	Type() string
	Kind() TagKind
	Connect() error
	Disconnect() error
}

// FeliCaTag extends Tag with the FeliCa commands used to read unencrypted
// service blocks.
//
// Example:
//
//	if felica, ok := tag.(FeliCaTag); ok {
//	    versions, _ := felica.RequestService([][]byte{{0x0f, 0x09}})
//	    status, blocks, _ := felica.ReadWithoutEncryption([][]byte{{0x0f, 0x09}}, []uint8{0, 1})
//	}
type FeliCaTag interface {
	Tag
	// IDm returns the 8-byte manufacture ID of the current system.
	IDm() []byte
	// SystemCode returns the 2-byte system code the tag answered polling with.
	SystemCode() []byte
	// RequestService returns one key version per node code. Node codes are
	// little-endian as sent on the wire. A key version of FF FF means the
	// node does not exist.
	RequestService(nodeCodes [][]byte) ([][]byte, error)
	// ReadWithoutEncryption reads the given block numbers of the services.
	// Service codes are little-endian.
	ReadWithoutEncryption(serviceCodes [][]byte, blocks []uint8) (FeliCaStatus, [][]byte, error)
}

// MiFareTag is a MIFARE family (ISO14443 Type A) tag.
type MiFareTag interface {
	Tag
	// Identifier returns the raw UID bytes.
	Identifier() []byte
	// Family returns the MIFARE product family reported by the tag.
	Family() string
}

// FeliCaStatus holds the status flags of a FeliCa read response.
type FeliCaStatus struct {
	Flag1 byte
	Flag2 byte
}

// OK reports whether both status flags signal success.
func (s FeliCaStatus) OK() bool {
	return s.Flag1 == 0x00 && s.Flag2 == 0x00
}
