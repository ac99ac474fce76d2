package nfc

import (
	"fmt"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

var (
	feliCaModulation     = nfc.Modulation{Type: nfc.Felica, BaudRate: nfc.Nbr212}
	iso14443aModulation  = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	iso14443bModulation  = nfc.Modulation{Type: nfc.ISO14443b, BaudRate: nfc.Nbr106}
	feliCaWildcardSystem = []byte{0xff, 0xff}
)

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	return d.device.InitiatorInit()
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// Transceive implements the Device Transceive method for raw data exchange.
func (d *libnfcDevice) Transceive(txData []byte) ([]byte, error) {
	var rxData [262]byte // Max buffer size for NFC
	count, err := d.device.InitiatorTransceiveBytes(txData, rxData[:], TransceiveTimeout)
	if err != nil {
		return nil, fmt.Errorf("libnfcDevice.Transceive: %w", err)
	}
	return rxData[:count], nil
}

// Poll polls for tags on the device.
// FeliCa targets are polled first at 212 kbps, then freefare.GetTags finds
// the MIFARE family, then ISO14443A and ISO14443B polling picks up the
// remaining targets.
func (d *libnfcDevice) Poll() ([]Tag, error) {
	var found []Tag
	processed := make(map[string]bool)
	var firstErr error

	// 1. FeliCa (NFC-F)
	targets, err := d.device.InitiatorListPassiveTargets(feliCaModulation)
	if err != nil {
		firstErr = err
		logger.WithError(err).Debug("Error listing FeliCa targets")
	}
	for _, target := range targets {
		ft, ok := target.(*nfc.FelicaTarget)
		if !ok {
			continue
		}
		tag := d.newFeliCaTarget(ft)
		if processed[tag.UID()] {
			continue
		}
		processed[tag.UID()] = true
		logger.WithFields(log.Fields{
			"idm":         tag.UID(),
			"system_code": fmt.Sprintf("%04X", systemCodeValue(tag.sysCode)),
		}).Debug("Found FeliCa tag")
		found = append(found, tag)
	}

	// 2. Freefare tags (MIFARE Classic, Ultralight, DESFire)
	ffTags, err := freefare.GetTags(d.device)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		logger.WithError(err).Debug("Error getting tags from freefare.GetTags")
	}
	for _, ffTag := range ffTags {
		tag := newFreefareTag(ffTag)
		if processed[tag.UID()] {
			continue
		}
		processed[tag.UID()] = true
		found = append(found, tag)
	}

	// 3. Remaining ISO14443A targets
	targets, err = d.device.InitiatorListPassiveTargets(iso14443aModulation)
	if err != nil {
		logger.WithError(err).Debug("Error listing ISO14443A targets")
	}
	for _, target := range targets {
		at, ok := target.(*nfc.ISO14443aTarget)
		if !ok || at.UIDLen <= 0 || int(at.UIDLen) > len(at.UID) {
			continue
		}
		uid := append([]byte(nil), at.UID[:at.UIDLen]...)
		if processed[protocol.FormatID(uid)] {
			continue
		}
		processed[protocol.FormatID(uid)] = true
		found = append(found, d.newISO14443aTarget(uid, at.Sak))
	}

	// 4. ISO14443B targets cannot be served but are reported
	targets, err = d.device.InitiatorListPassiveTargets(iso14443bModulation)
	if err != nil {
		logger.WithError(err).Debug("Error listing ISO14443B targets")
	}
	for _, target := range targets {
		bt, ok := target.(*nfc.ISO14443bTarget)
		if !ok {
			continue
		}
		found = append(found, &unsupportedTag{uid: append([]byte(nil), bt.Pupi[:]...), productName: "ISO14443B"})
	}

	if len(found) == 0 && firstErr != nil && IsIOError(firstErr) {
		return nil, firstErr
	}
	return found, nil
}

func (d *libnfcDevice) newFeliCaTarget(ft *nfc.FelicaTarget) *feliCaTag {
	idm := append([]byte(nil), ft.ID[:]...)
	sysCode := append([]byte(nil), ft.SysCode[:]...)
	return newFeliCaTag(idm, sysCode, d, func() error {
		return d.selectFeliCa(idm, sysCode)
	})
}

// selectFeliCa polls again with the tag's own system code and checks that
// the same IDm answered.
func (d *libnfcDevice) selectFeliCa(idm, sysCode []byte) error {
	if len(sysCode) != 2 {
		sysCode = feliCaWildcardSystem
	}
	// Polling payload: request code 00, system code, request 01 (system
	// code in response), time slot 00
	initData := []byte{0x00, sysCode[0], sysCode[1], 0x01, 0x00}
	target, err := d.device.InitiatorSelectPassiveTarget(feliCaModulation, initData)
	if err != nil {
		return fmt.Errorf("select FeliCa target: %w", err)
	}
	ft, ok := target.(*nfc.FelicaTarget)
	if !ok {
		return fmt.Errorf("select FeliCa target: unexpected target %T", target)
	}
	if protocol.FormatID(ft.ID[:]) != protocol.FormatID(idm) {
		return fmt.Errorf("select FeliCa target: tag changed (%s)", protocol.FormatID(ft.ID[:]))
	}
	return nil
}

func (d *libnfcDevice) newISO14443aTarget(uid []byte, sak byte) *miFareTag {
	family, name := FamilyUnspecified, "MIFARE"
	// SAK bit 5 signals ISO14443-4 compliance
	if sak&0x20 != 0 {
		family, name = FamilyISO14443, "ISO14443-4A"
	}
	return &miFareTag{
		uid:         uid,
		productName: name,
		family:      family,
		connectFn: func() error {
			_, err := d.device.InitiatorSelectPassiveTarget(iso14443aModulation, uid)
			if err != nil {
				return fmt.Errorf("select ISO14443A target: %w", err)
			}
			return nil
		},
	}
}
