package nfc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// Operation names carried in ReaderError.Op.
const (
	opReadID        = "readId"
	opReadBlockData = "readBlockData"
)

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	DevicePath     string
	SessionTimeout time.Duration
	PollInterval   time.Duration
	Clock          Clock
}

// SessionStatus is published on Reader.StatusUpdates for every session
// transition.
type SessionStatus struct {
	SessionID string
	Op        string
	State     SessionState
	Message   string
	TagType   string
	Reason    InvalidationReason
}

// DeviceStatus reports whether reader hardware is attached.
type DeviceStatus struct {
	Connected     bool
	Message       string
	SessionActive bool
}

// Reader runs one reader session at a time and turns the first detected tag
// into a protocol.ReadResult. Every failure is a *ReaderError.
//
// Example:
//
//	reader, _ := nfc.NewReader(nfc.NewManager(), nfc.ReaderConfig{})
//	defer reader.Close()
//	result, err := reader.ReadID(ctx, protocol.ReadOptions{Message: "Hold your card"})
type Reader struct {
	deviceManager *DeviceManager
	cfg           ReaderConfig
	statusChan    chan SessionStatus

	mu      sync.Mutex
	busy    bool
	session *Session

	lastMu     sync.RWMutex
	lastResult *protocol.ReadResult
}

type outcome struct {
	result *protocol.ReadResult
	err    error
}

// NewReader creates a Reader. The device is opened when the first session
// starts.
func NewReader(manager Manager, cfg ReaderConfig) (*Reader, error) {
	if manager == nil {
		return nil, fmt.Errorf("NFC manager cannot be nil")
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	return &Reader{
		deviceManager: NewDeviceManager(manager, cfg.DevicePath, cfg.Clock),
		cfg:           cfg,
		statusChan:    make(chan SessionStatus, 8),
	}, nil
}

// Close releases the device.
func (r *Reader) Close() {
	r.Cancel()
	r.deviceManager.Close()
}

// StatusUpdates returns a channel of session transitions. Updates are
// dropped when nobody reads them.
func (r *Reader) StatusUpdates() <-chan SessionStatus {
	return r.statusChan
}

// Available reports whether reader hardware can be opened.
func (r *Reader) Available() bool {
	return r.deviceManager.TryConnect() == nil
}

// ListDevices lists attached readers.
func (r *Reader) ListDevices() ([]string, error) {
	return r.deviceManager.ListDevices()
}

// GetDeviceStatus returns the current device status without opening the
// device.
func (r *Reader) GetDeviceStatus() DeviceStatus {
	status := DeviceStatus{SessionActive: r.SessionActive()}
	switch {
	case r.deviceManager.HasDevice():
		status.Connected = true
		if dev := r.deviceManager.Device(); dev != nil {
			status.Message = fmt.Sprintf("Connected to %s", dev.String())
		} else {
			status.Message = "Connected"
		}
	case r.deviceManager.InCooldown():
		status.Message = "Device in cooldown"
	default:
		status.Message = "Not connected"
	}
	return status
}

// SessionActive reports whether a session is in flight.
func (r *Reader) SessionActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// LastResult returns the most recent successful result, or nil.
func (r *Reader) LastResult() *protocol.ReadResult {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.lastResult
}

// Cancel invalidates the active session as a user cancel. It reports
// whether a session was running.
func (r *Reader) Cancel() bool {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == nil {
		return false
	}
	session.Cancel()
	return true
}

// ReadID waits for a tag and returns its identifier: the IDm for FeliCa,
// the UID for MIFARE.
func (r *Reader) ReadID(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error) {
	return r.run(ctx, opReadID, opts, r.readTagID)
}

// ReadBlockData waits for a FeliCa tag and reads count blocks starting at
// start from the service. Options are validated before a session starts.
func (r *Reader) ReadBlockData(ctx context.Context, opts protocol.ReadOptions) (*protocol.ReadResult, error) {
	req, err := ValidateBlockRequest(opts)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, opReadBlockData, opts, func(tag Tag) (*protocol.ReadResult, error) {
		return r.readTagBlocks(tag, req)
	})
}

func (r *Reader) run(ctx context.Context, op string, opts protocol.ReadOptions, handle func(Tag) (*protocol.ReadResult, error)) (*protocol.ReadResult, error) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return nil, ErrSessionBusy
	}
	r.busy = true
	r.mu.Unlock()

	dev, err := r.deviceManager.Acquire()
	if err != nil {
		r.endSession(nil)
		logger.WithError(err).Warn("NFC is not available")
		return nil, newReaderError(protocol.ErrNFCNotAvailable, op, err)
	}

	session := NewSession(dev, SessionConfig{
		Message:      opts.PromptMessage(),
		PollInterval: r.cfg.PollInterval,
		Timeout:      r.cfg.SessionTimeout,
		Clock:        r.cfg.Clock,
	})
	r.mu.Lock()
	r.session = session
	r.mu.Unlock()

	entry := logger.WithFields(log.Fields{"session": session.ID(), "op": op})
	entry.Info("Reader session started")
	session.Begin(ctx)

	results := make(chan outcome, 1)
	handling := false
	events := session.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				if !handling {
					r.finish(session, nil)
					return nil, newReaderError(protocol.ErrUnhandled, op, errors.New("session ended without result"))
				}
				continue
			}
			r.publish(session, op, ev)

			switch ev.State {
			case SessionTagDetected:
				if handling {
					continue
				}
				handling = true
				tag := ev.Tags[0]
				entry.WithFields(log.Fields{"uid": tag.UID(), "type": tag.Type()}).Info("Tag detected")
				go func() {
					res, err := r.handleTag(op, tag, handle)
					results <- outcome{result: res, err: err}
				}()
			case SessionInvalidated:
				res, err := r.invalidationOutcome(op, ev.Err)
				entry.WithField("reason", ev.Err.Reason).Info("Reader session invalidated")
				if handling {
					r.finish(session, results)
				} else {
					r.finish(session, nil)
				}
				return res, err
			}

		case out := <-results:
			r.finish(session, nil)
			r.publishStatus(SessionStatus{SessionID: session.ID(), Op: op, State: SessionInvalidated, Message: session.Message()})
			if out.err != nil {
				entry.WithError(out.err).Warn("Reader session failed")
				r.deviceManager.HandleError(errors.Unwrap(out.err))
				return nil, out.err
			}
			r.lastMu.Lock()
			r.lastResult = out.result
			r.lastMu.Unlock()
			entry.WithField("id", out.result.ID).Info("Reader session completed")
			return out.result, nil
		}
	}
}

// finish invalidates the session and frees the reader. When a tag handler is
// still running the reader stays busy until it returns so that the device
// is never shared.
func (r *Reader) finish(session *Session, pending <-chan outcome) {
	if pending == nil {
		session.Invalidate()
		r.endSession(session)
		return
	}
	go func() {
		<-pending
		session.Invalidate()
		r.endSession(session)
	}()
}

func (r *Reader) endSession(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session == nil || r.session == session {
		r.session = nil
		r.busy = false
	}
}

func (r *Reader) invalidationOutcome(op string, err *SessionInvalidatedError) (*protocol.ReadResult, error) {
	switch err.Reason {
	case ReasonUserCanceled:
		return protocol.CancelledResult(), nil
	case ReasonSessionTimeout:
		return nil, newReaderError(protocol.ErrSessionTimeout, op, err)
	default:
		r.deviceManager.HandleError(err.Cause)
		return nil, newReaderError(protocol.ErrUnhandled, op, err)
	}
}

// handleTag connects to tag and runs handle. Unknown tags are rejected
// before connecting.
func (r *Reader) handleTag(op string, tag Tag, handle func(Tag) (*protocol.ReadResult, error)) (*protocol.ReadResult, error) {
	if tag.Kind() == TagKindUnknown {
		return nil, newReaderError(protocol.ErrTagNotSupported, op, fmt.Errorf("tag type %q", tag.Type()))
	}
	if err := tag.Connect(); err != nil {
		return nil, newReaderError(protocol.ErrNFCConnection, op, err)
	}
	defer tag.Disconnect()
	return handle(tag)
}

func (r *Reader) readTagID(tag Tag) (*protocol.ReadResult, error) {
	switch t := tag.(type) {
	case FeliCaTag:
		return &protocol.ReadResult{ID: protocol.FormatID(t.IDm()), Type: protocol.TagTypeF}, nil
	case MiFareTag:
		return &protocol.ReadResult{ID: protocol.FormatID(t.Identifier()), Type: protocol.TagTypeA}, nil
	default:
		return nil, newReaderError(protocol.ErrTagNotSupported, opReadID, fmt.Errorf("tag type %q", tag.Type()))
	}
}

func (r *Reader) readTagBlocks(tag Tag, req BlockRequest) (*protocol.ReadResult, error) {
	feliCa, ok := tag.(FeliCaTag)
	if !ok {
		if tag.Kind() == TagKindMiFare {
			return nil, newReaderError(protocol.ErrFeatureNotSupported, opReadBlockData, nil)
		}
		return nil, newReaderError(protocol.ErrTagNotSupported, opReadBlockData, fmt.Errorf("tag type %q", tag.Type()))
	}

	versions, err := feliCa.RequestService([][]byte{req.ServiceCode})
	if err != nil {
		return nil, newReaderError(protocol.ErrRequestService, opReadBlockData, err)
	}
	if len(versions) == 0 || bytes.Equal(versions[0], NodeNotFound) {
		return nil, newReaderError(protocol.ErrRequestService, opReadBlockData,
			fmt.Errorf("service %x not found", ServiceCodeToWire(req.ServiceCode)))
	}

	status, blocks, err := feliCa.ReadWithoutEncryption([][]byte{req.ServiceCode}, req.Blocks())
	if err != nil {
		return nil, newReaderError(protocol.ErrReadBlockData, opReadBlockData, err)
	}
	if !status.OK() {
		return nil, newReaderError(protocol.ErrReadBlockDataStatusCode, opReadBlockData,
			fmt.Errorf("status flags %02x/%02x", status.Flag1, status.Flag2))
	}

	data := make([]protocol.ByteArray, len(blocks))
	for i, block := range blocks {
		data[i] = protocol.ByteArray(block)
	}
	return &protocol.ReadResult{
		ID:   protocol.FormatID(feliCa.IDm()),
		Type: protocol.TagTypeF,
		Data: data,
	}, nil
}

func (r *Reader) publish(session *Session, op string, ev SessionEvent) {
	status := SessionStatus{
		SessionID: session.ID(),
		Op:        op,
		State:     ev.State,
		Message:   ev.Message,
	}
	if len(ev.Tags) > 0 {
		status.TagType = ev.Tags[0].Kind().ResultType()
	}
	if ev.Err != nil {
		status.Reason = ev.Err.Reason
	}
	r.publishStatus(status)
}

func (r *Reader) publishStatus(status SessionStatus) {
	select {
	case r.statusChan <- status:
	default:
		logger.Debug("Session status channel full or no listener")
	}
}
