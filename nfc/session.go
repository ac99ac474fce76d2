package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a reader session.
type SessionState string

const (
	SessionActive      SessionState = "active"
	SessionTagDetected SessionState = "tagDetected"
	SessionInvalidated SessionState = "invalidated"
)

// InvalidationReason says why a session ended before delivering a result.
type InvalidationReason string

const (
	ReasonUserCanceled   InvalidationReason = "userCanceled"
	ReasonSessionTimeout InvalidationReason = "sessionTimeout"
	ReasonSystem         InvalidationReason = "system"
)

// SessionInvalidatedError is carried by invalidation events.
type SessionInvalidatedError struct {
	Reason InvalidationReason
	Cause  error
}

func (e *SessionInvalidatedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session invalidated (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("session invalidated (%s)", e.Reason)
}

func (e *SessionInvalidatedError) Unwrap() error {
	return e.Cause
}

// SessionEvent is emitted by a Session as it progresses.
type SessionEvent struct {
	State   SessionState
	Message string
	Tags    []Tag
	Err     *SessionInvalidatedError // always set for SessionInvalidated
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Message      string
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        Clock // defaults to the real clock
}

// Session polls a device for FeliCa and ISO14443 tags until one is found,
// the user cancels, or the timeout expires. Events are delivered in order on
// Events(); the channel is closed once the session has stopped.
//
// Example:
//
//	s := nfc.NewSession(device, nfc.SessionConfig{Message: "Hold card"})
//	s.Begin(ctx)
//	defer s.Invalidate()
//	for ev := range s.Events() {
//	    // handle ev.State
//	}
type Session struct {
	id     string
	device Device
	cfg    SessionConfig

	events chan SessionEvent

	stop       chan struct{}
	cancel     chan struct{}
	stopOnce   sync.Once
	cancelOnce sync.Once
	begun      sync.Once
	wg         sync.WaitGroup
}

// NewSession creates a session for device. Zero config fields take defaults.
func NewSession(device Device, cfg SessionConfig) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	return &Session{
		id:     uuid.New().String(),
		device: device,
		cfg:    cfg,
		events: make(chan SessionEvent, 4),
		stop:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Message returns the prompt shown while the session waits for a tag.
func (s *Session) Message() string {
	return s.cfg.Message
}

// Events returns the session event stream.
func (s *Session) Events() <-chan SessionEvent {
	return s.events
}

// Begin starts polling. Cancelling ctx invalidates the session with
// ReasonUserCanceled, or ReasonSessionTimeout if its deadline passed.
func (s *Session) Begin(ctx context.Context) {
	s.begun.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Cancel invalidates the session as if the user dismissed it.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Invalidate ends the session without emitting an event and waits for the
// polling goroutine to stop using the device.
func (s *Session) Invalidate() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	if !s.emit(SessionEvent{State: SessionActive, Message: s.cfg.Message}) {
		return
	}

	timeout := s.cfg.Clock.NewTimer(s.cfg.Timeout)
	defer timeout.Stop()
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	detected := false
	for {
		if !detected {
			tags, err := s.device.Poll()
			if err != nil {
				s.invalidate(ReasonSystem, err)
				return
			}
			if len(tags) > 0 {
				detected = true
				if !s.emit(SessionEvent{State: SessionTagDetected, Message: s.cfg.Message, Tags: tags}) {
					return
				}
			}
		}

		select {
		case <-s.stop:
			return
		case <-s.cancel:
			s.invalidate(ReasonUserCanceled, nil)
			return
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.invalidate(ReasonSessionTimeout, ctx.Err())
			} else {
				s.invalidate(ReasonUserCanceled, ctx.Err())
			}
			return
		case <-timeout.C():
			s.invalidate(ReasonSessionTimeout, nil)
			return
		case <-ticker.C():
		}
	}
}

func (s *Session) invalidate(reason InvalidationReason, cause error) {
	s.emit(SessionEvent{
		State:   SessionInvalidated,
		Message: s.cfg.Message,
		Err:     &SessionInvalidatedError{Reason: reason, Cause: cause},
	})
}

// emit delivers ev unless the session was stopped first.
func (s *Session) emit(ev SessionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}
