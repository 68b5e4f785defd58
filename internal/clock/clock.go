// Package clock abstracts wall time and the one-second tick source so session
// timing stays deterministic in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock in local time. Streak days are calendar days
// as the user sees them, so local time is intentional.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Fixed is a Clock frozen at T. Tests move it by assigning T.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time {
	return f.T
}

// Manual is a Ticker fired by hand.
type Manual struct {
	ch      chan time.Time
	stopped chan struct{}
}

// NewManual returns a Manual ticker with room for buffered ticks.
func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time, 64), stopped: make(chan struct{})}
}

func (m *Manual) C() <-chan time.Time { return m.ch }

func (m *Manual) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

// Fire delivers one tick unless the ticker was stopped.
func (m *Manual) Fire() {
	select {
	case <-m.stopped:
	case m.ch <- time.Now():
	}
}

// Stopped reports whether Stop was called.
func (m *Manual) Stopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}
