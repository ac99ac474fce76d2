package nfc

import (
	"fmt"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// BlockRequest is a validated readBlockData request in wire form.
type BlockRequest struct {
	ServiceCode []byte // little-endian
	Start       int
	Count       int
}

// Blocks returns the block numbers to read.
func (b BlockRequest) Blocks() []uint8 {
	return BlockList(b.Start, b.Count)
}

// ValidateBlockRequest checks readBlockData options and converts them to a
// BlockRequest. Failures wrap ErrInvalidArguments.
func ValidateBlockRequest(opts protocol.ReadOptions) (BlockRequest, error) {
	if len(opts.ServiceCode) != 2 {
		return BlockRequest{}, invalidArgs("service_code must be 2 bytes, got %d", len(opts.ServiceCode))
	}
	if opts.Start == nil || *opts.Start < 0 {
		return BlockRequest{}, invalidArgs("start must be present and >= 0")
	}
	if opts.Count == nil || *opts.Count < 1 || *opts.Count > protocol.MaxBlockCount {
		return BlockRequest{}, invalidArgs("count must be between 1 and %d", protocol.MaxBlockCount)
	}
	if *opts.Start+*opts.Count > protocol.MaxBlockEnd {
		return BlockRequest{}, invalidArgs("start+count must not exceed %d", protocol.MaxBlockEnd)
	}
	return BlockRequest{
		ServiceCode: ServiceCodeToWire(opts.ServiceCode),
		Start:       *opts.Start,
		Count:       *opts.Count,
	}, nil
}

func invalidArgs(format string, args ...any) error {
	return newReaderError(protocol.ErrInvalidArguments, opReadBlockData, fmt.Errorf(format, args...))
}
