package nfc

import (
	"sync"
	"time"
)

// Clock supplies the session timeout, the poll ticker and the device
// cooldown deadline. Tests swap in a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// NewRealClock returns a Clock backed by package time.
func NewRealClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
func (realClock) NewTimer(d time.Duration) Timer   { return realTimer{time.NewTimer(d)} }

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

type realTimer struct{ *time.Timer }

func (t realTimer) C() <-chan time.Time { return t.Timer.C }

// FakeClock only moves when Advance is called. Channels are buffered by one,
// so a ticker that falls behind delivers a single tick.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	alarms []*fakeAlarm
	timers int
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	return fakeTicker{c.add(d, d)}
}

func (c *FakeClock) NewTimer(d time.Duration) Timer {
	return c.add(d, 0)
}

func (c *FakeClock) add(d, period time.Duration) *fakeAlarm {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &fakeAlarm{clock: c, at: c.now.Add(d), period: period, c: make(chan time.Time, 1)}
	c.alarms = append(c.alarms, a)
	if period == 0 {
		c.timers++
	}
	return a
}

// Timers reports how many timers have been created.
func (c *FakeClock) Timers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers
}

// Advance moves time forward by d and fires every alarm that came due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for _, a := range c.alarms {
		if a.stopped || c.now.Before(a.at) {
			continue
		}
		select {
		case a.c <- c.now:
		default:
		}
		if a.period == 0 {
			a.stopped = true
			continue
		}
		for !a.at.After(c.now) {
			a.at = a.at.Add(a.period)
		}
	}
}

// fakeAlarm is a one-shot timer when period is zero, a ticker otherwise.
type fakeAlarm struct {
	clock   *FakeClock
	at      time.Time
	period  time.Duration
	c       chan time.Time
	stopped bool
}

func (a *fakeAlarm) C() <-chan time.Time { return a.c }

func (a *fakeAlarm) Stop() bool {
	a.clock.mu.Lock()
	defer a.clock.mu.Unlock()
	wasActive := !a.stopped
	a.stopped = true
	return wasActive
}

type fakeTicker struct{ *fakeAlarm }

func (t fakeTicker) Stop() { t.fakeAlarm.Stop() }
