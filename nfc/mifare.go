package nfc

import (
	"github.com/clausecker/freefare"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// MIFARE families reported by Family().
const (
	FamilyClassic     = "MIFARE Classic"
	FamilyUltralight  = "MIFARE Ultralight"
	FamilyDESFire     = "MIFARE DESFire"
	FamilyISO14443    = "ISO14443-4"
	FamilyUnspecified = "MIFARE"
)

// miFareTag implements MiFareTag for tags found through freefare or through
// raw ISO14443A polling.
type miFareTag struct {
	uid          []byte
	productName  string
	family       string
	connectFn    func() error
	disconnectFn func() error
}

func (t *miFareTag) UID() string    { return protocol.FormatID(t.uid) }
func (t *miFareTag) Type() string   { return t.productName }
func (t *miFareTag) Kind() TagKind  { return TagKindMiFare }
func (t *miFareTag) Family() string { return t.family }

func (t *miFareTag) Identifier() []byte {
	return append([]byte(nil), t.uid...)
}

func (t *miFareTag) Connect() error {
	if t.connectFn == nil {
		return nil
	}
	return t.connectFn()
}

func (t *miFareTag) Disconnect() error {
	if t.disconnectFn == nil {
		return nil
	}
	return t.disconnectFn()
}

// newFreefareTag wraps a freefare tag. The UID string from libfreefare is
// hex already; it is normalized to lowercase.
func newFreefareTag(tag freefare.Tag) *miFareTag {
	uid, err := protocol.ParseID(tag.UID())
	if err != nil {
		logger.WithError(err).WithField("uid", tag.UID()).Warn("Malformed freefare UID")
	}
	name, family := freefareProduct(tag.Type())
	return &miFareTag{
		uid:          uid,
		productName:  name,
		family:       family,
		connectFn:    tag.Connect,
		disconnectFn: tag.Disconnect,
	}
}

func freefareProduct(tagType int) (name, family string) {
	switch tagType {
	case freefare.Classic1k:
		return "MIFARE Classic 1K", FamilyClassic
	case freefare.Classic4k:
		return "MIFARE Classic 4K", FamilyClassic
	case freefare.Ultralight:
		return "MIFARE Ultralight", FamilyUltralight
	case freefare.UltralightC:
		return "MIFARE Ultralight C", FamilyUltralight
	case freefare.DESFire:
		return "MIFARE DESFire", FamilyDESFire
	default:
		return "MIFARE", FamilyUnspecified
	}
}

// unsupportedTag is a target the reader detected but cannot serve, such as
// an ISO14443 Type B card.
type unsupportedTag struct {
	uid         []byte
	productName string
}

func (t *unsupportedTag) UID() string       { return protocol.FormatID(t.uid) }
func (t *unsupportedTag) Type() string      { return t.productName }
func (t *unsupportedTag) Kind() TagKind     { return TagKindUnknown }
func (t *unsupportedTag) Connect() error    { return nil }
func (t *unsupportedTag) Disconnect() error { return nil }
