package nfc

// Device is an open reader. It polls the field for FeliCa and ISO14443
// targets and exchanges raw frames with the selected one.
//
// Example:
//
//	device, err := manager.OpenDevice("")
//	if err != nil {
//	    return err
//	}
//	defer device.Close()
//	tags, err := device.Poll()
type Device interface {
	// InitiatorInit puts the reader in initiator mode. Call it again after
	// an I/O error to recover the device.
	InitiatorInit() error

	// Poll looks for targets once. An empty field is not an error.
	Poll() ([]Tag, error)

	// Transceive sends a raw frame to the current target and returns its
	// response.
	Transceive(txData []byte) ([]byte, error)

	// String names the reader hardware; Connection is its libnfc
	// connection string.
	String() string
	Connection() string

	Close() error
}
