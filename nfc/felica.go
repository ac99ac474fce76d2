package nfc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// FeliCa command and response codes
const (
	feliCaCmdRequestService        = 0x02
	feliCaResRequestService        = 0x03
	feliCaCmdReadWithoutEncryption = 0x06
	feliCaResReadWithoutEncryption = 0x07

	feliCaIDmLen      = 8
	feliCaMaxServices = 16 // per Read Without Encryption command
	feliCaMaxNodes    = 32 // per Request Service command

	// Block list element header: 2-byte element, access mode 0, service
	// index 0.
	feliCaBlockElemHeader = 0x80
)

var (
	errFrameTooShort    = errors.New("felica: frame too short")
	errFrameLength      = errors.New("felica: length byte does not match frame")
	errUnexpectedResult = errors.New("felica: unexpected response code")
	errIDmMismatch      = errors.New("felica: response IDm does not match")
)

// NodeNotFound is the key version returned for a node that does not exist.
var NodeNotFound = []byte{0xff, 0xff}

// ServiceCodeToWire converts a service code written big-endian (as found
// in card documentation) to the little-endian order FeliCa commands use.
func ServiceCodeToWire(code []byte) []byte {
	out := make([]byte, len(code))
	for i := range code {
		out[len(code)-1-i] = code[i]
	}
	return out
}

// BlockList returns the block numbers start, start+1 ... start+count-1.
func BlockList(start, count int) []uint8 {
	blocks := make([]uint8, 0, count)
	for i := start; i < start+count; i++ {
		blocks = append(blocks, uint8(i))
	}
	return blocks
}

// encodeRequestService builds a Request Service command frame:
// LEN 02 IDm(8) n node(2)*n
func encodeRequestService(idm []byte, nodeCodes [][]byte) ([]byte, error) {
	if len(idm) != feliCaIDmLen {
		return nil, fmt.Errorf("felica: IDm must be %d bytes, got %d", feliCaIDmLen, len(idm))
	}
	if len(nodeCodes) == 0 || len(nodeCodes) > feliCaMaxNodes {
		return nil, fmt.Errorf("felica: node count %d out of range", len(nodeCodes))
	}

	var buf bytes.Buffer
	buf.WriteByte(0) // length placeholder
	buf.WriteByte(feliCaCmdRequestService)
	buf.Write(idm)
	buf.WriteByte(byte(len(nodeCodes)))
	for _, node := range nodeCodes {
		if len(node) != 2 {
			return nil, fmt.Errorf("felica: node code must be 2 bytes, got %d", len(node))
		}
		buf.Write(node)
	}
	frame := buf.Bytes()
	frame[0] = byte(len(frame))
	return frame, nil
}

// decodeRequestService parses a Request Service response:
// LEN 03 IDm(8) n keyVersion(2)*n
func decodeRequestService(frame, idm []byte) ([][]byte, error) {
	body, err := checkFrame(frame, feliCaResRequestService, idm)
	if err != nil {
		return nil, err
	}
	if len(body) < 1 {
		return nil, errFrameTooShort
	}
	n := int(body[0])
	if len(body) < 1+2*n {
		return nil, errFrameTooShort
	}
	versions := make([][]byte, n)
	for i := 0; i < n; i++ {
		versions[i] = append([]byte(nil), body[1+2*i:3+2*i]...)
	}
	return versions, nil
}

// encodeReadWithoutEncryption builds a Read Without Encryption frame:
// LEN 06 IDm(8) m service(2)*m n blockElem(2)*n
func encodeReadWithoutEncryption(idm []byte, serviceCodes [][]byte, blocks []uint8) ([]byte, error) {
	if len(idm) != feliCaIDmLen {
		return nil, fmt.Errorf("felica: IDm must be %d bytes, got %d", feliCaIDmLen, len(idm))
	}
	if len(serviceCodes) == 0 || len(serviceCodes) > feliCaMaxServices {
		return nil, fmt.Errorf("felica: service count %d out of range", len(serviceCodes))
	}
	if len(blocks) == 0 || len(blocks) > protocol.MaxBlockCount {
		return nil, fmt.Errorf("felica: block count %d out of range", len(blocks))
	}

	var buf bytes.Buffer
	buf.WriteByte(0)
	buf.WriteByte(feliCaCmdReadWithoutEncryption)
	buf.Write(idm)
	buf.WriteByte(byte(len(serviceCodes)))
	for _, svc := range serviceCodes {
		if len(svc) != 2 {
			return nil, fmt.Errorf("felica: service code must be 2 bytes, got %d", len(svc))
		}
		buf.Write(svc)
	}
	buf.WriteByte(byte(len(blocks)))
	for _, block := range blocks {
		buf.WriteByte(feliCaBlockElemHeader)
		buf.WriteByte(block)
	}
	frame := buf.Bytes()
	frame[0] = byte(len(frame))
	return frame, nil
}

// decodeReadWithoutEncryption parses a Read Without Encryption response:
// LEN 07 IDm(8) sf1 sf2 [n block(16)*n]
// Block data is only present when sf1 is zero.
func decodeReadWithoutEncryption(frame, idm []byte) (FeliCaStatus, [][]byte, error) {
	body, err := checkFrame(frame, feliCaResReadWithoutEncryption, idm)
	if err != nil {
		return FeliCaStatus{}, nil, err
	}
	if len(body) < 2 {
		return FeliCaStatus{}, nil, errFrameTooShort
	}
	status := FeliCaStatus{Flag1: body[0], Flag2: body[1]}
	if status.Flag1 != 0x00 {
		return status, nil, nil
	}
	if len(body) < 3 {
		return status, nil, errFrameTooShort
	}
	n := int(body[2])
	data := body[3:]
	if len(data) < n*protocol.BlockSize {
		return status, nil, errFrameTooShort
	}
	blocks := make([][]byte, n)
	for i := 0; i < n; i++ {
		blocks[i] = append([]byte(nil), data[i*protocol.BlockSize:(i+1)*protocol.BlockSize]...)
	}
	return status, blocks, nil
}

// checkFrame validates the length byte, response code and IDm of a response
// and returns the bytes following the IDm.
func checkFrame(frame []byte, code byte, idm []byte) ([]byte, error) {
	if len(frame) < 2+feliCaIDmLen {
		return nil, errFrameTooShort
	}
	if int(frame[0]) != len(frame) {
		return nil, fmt.Errorf("%w: header %d, frame %d", errFrameLength, frame[0], len(frame))
	}
	if frame[1] != code {
		return nil, fmt.Errorf("%w: 0x%02x", errUnexpectedResult, frame[1])
	}
	if idm != nil && !bytes.Equal(frame[2:2+feliCaIDmLen], idm) {
		return nil, errIDmMismatch
	}
	return frame[2+feliCaIDmLen:], nil
}

// transceiver sends a raw frame to the selected target.
type transceiver interface {
	Transceive(txData []byte) ([]byte, error)
}

// feliCaTag implements FeliCaTag on top of a Device. Connect selects the tag
// again by its system code so that frames reach this IDm.
type feliCaTag struct {
	idm      []byte
	sysCode  []byte
	device   transceiver
	selectFn func() error
}

func newFeliCaTag(idm, sysCode []byte, device transceiver, selectFn func() error) *feliCaTag {
	return &feliCaTag{
		idm:      append([]byte(nil), idm...),
		sysCode:  append([]byte(nil), sysCode...),
		device:   device,
		selectFn: selectFn,
	}
}

func (t *feliCaTag) UID() string        { return protocol.FormatID(t.idm) }
func (t *feliCaTag) Type() string       { return "FeliCa" }
func (t *feliCaTag) Kind() TagKind      { return TagKindFeliCa }
func (t *feliCaTag) IDm() []byte        { return append([]byte(nil), t.idm...) }
func (t *feliCaTag) SystemCode() []byte { return append([]byte(nil), t.sysCode...) }

func (t *feliCaTag) Connect() error {
	if t.selectFn == nil {
		return nil
	}
	return t.selectFn()
}

func (t *feliCaTag) Disconnect() error {
	return nil
}

func (t *feliCaTag) RequestService(nodeCodes [][]byte) ([][]byte, error) {
	frame, err := encodeRequestService(t.idm, nodeCodes)
	if err != nil {
		return nil, err
	}
	resp, err := t.device.Transceive(frame)
	if err != nil {
		return nil, fmt.Errorf("request service: %w", err)
	}
	return decodeRequestService(resp, t.idm)
}

func (t *feliCaTag) ReadWithoutEncryption(serviceCodes [][]byte, blocks []uint8) (FeliCaStatus, [][]byte, error) {
	frame, err := encodeReadWithoutEncryption(t.idm, serviceCodes, blocks)
	if err != nil {
		return FeliCaStatus{}, nil, err
	}
	resp, err := t.device.Transceive(frame)
	if err != nil {
		return FeliCaStatus{}, nil, fmt.Errorf("read without encryption: %w", err)
	}
	return decodeReadWithoutEncryption(resp, t.idm)
}

// systemCodeValue returns the system code as a big-endian integer for logging.
func systemCodeValue(sysCode []byte) uint16 {
	if len(sysCode) != 2 {
		return 0
	}
	return binary.BigEndian.Uint16(sysCode)
}
