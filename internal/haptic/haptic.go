// Package haptic provides the best-effort pulse fired on every phase change.
// Terminals have no vibration motor, so a pulse is a bell, a short tone or a
// desktop notification. A pulse never blocks and never fails the caller.
package haptic

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/fakeyudi/respira/internal/audio"
	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/pattern"
)

// Pulser fires one pulse for the phase that just started.
type Pulser interface {
	Pulse(phase string)
}

// Canceler is implemented by pulsers that deliver asynchronously. Cancel
// drops every pulse not yet delivered.
type Canceler interface {
	Cancel()
}

// Kinds accepted by New.
const (
	KindOff    = "off"
	KindBell   = "bell"
	KindTone   = "tone"
	KindNotify = "notify"
)

// New returns the pulser named by kind. Unavailable providers degrade to Nop.
func New(kind string, w io.Writer, sink audio.Sink, logger *log.Logger) Pulser {
	logger = logging.OrDiscard(logger)
	switch kind {
	case KindBell:
		return Bell{W: w}
	case KindTone:
		if sink == nil {
			logger.Debug("tone pulse needs audio output; pulses disabled")
			return Nop{}
		}
		return NewTone(sink)
	case KindNotify:
		n, err := DialNotifier(logger)
		if err != nil {
			logger.Debug("desktop notifications unavailable; pulses disabled", "err", err)
			return Nop{}
		}
		return n
	}
	return Nop{}
}

// Nop ignores pulses.
type Nop struct{}

func (Nop) Pulse(string) {}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Pulse(string) {
	if b.W != nil {
		_, _ = io.WriteString(b.W, "\a")
	}
}

// Tone plays a short sine blip, pitched per phase.
type Tone struct {
	sink     audio.Sink
	duration time.Duration
	volume   float64
}

// NewTone returns a Tone playing into sink.
func NewTone(sink audio.Sink) *Tone {
	return &Tone{sink: sink, duration: 120 * time.Millisecond, volume: 0.3}
}

var toneFreq = map[string]float64{
	pattern.Inhale: 660,
	pattern.Hold:   550,
	pattern.Exhale: 440,
	pattern.Rest:   392,
}

func (t *Tone) Pulse(phase string) {
	freq, ok := toneFreq[phase]
	if !ok {
		freq = 523
	}
	t.sink.Add(&effects.Gain{Streamer: sine(freq, t.duration), Gain: t.volume - 1})
}

// sine returns a finite sine burst with a linear fade-out.
func sine(freq float64, d time.Duration) beep.Streamer {
	sr := audio.Format.SampleRate
	total := sr.N(d)
	step := 2 * math.Pi * freq / float64(sr)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := min(len(samples), total-pos)
		for i := range n {
			fade := 1 - float64(pos+i)/float64(total)
			v := math.Sin(step*float64(pos+i)) * fade
			samples[i] = [2]float64{v, v}
		}
		pos += n
		return n, true
	})
}

// busObject is the part of dbus.BusObject the notifier uses.
type busObject interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Notifier shows the current phase as a desktop notification over
// org.freedesktop.Notifications, replacing its own previous one. Calls run
// on a worker; a pulse arriving while one is in flight replaces the
// pending one.
type Notifier struct {
	obj  busObject
	conn *dbus.Conn
	log  *log.Logger

	pending chan pulse
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	replace uint32
	gen     uint64
}

type pulse struct {
	phase string
	gen   uint64
}

// DialNotifier connects to the session bus.
func DialNotifier(logger *log.Logger) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	n := newNotifier(obj, logger)
	n.conn = conn
	return n, nil
}

func newNotifier(obj busObject, logger *log.Logger) *Notifier {
	n := &Notifier{
		obj:     obj,
		log:     logging.OrDiscard(logger),
		pending: make(chan pulse, 1),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *Notifier) Pulse(phase string) {
	n.mu.Lock()
	p := pulse{phase: phase, gen: n.gen}
	n.mu.Unlock()
	select {
	case n.pending <- p:
		return
	default:
	}
	// Drop the stale pending pulse in favour of this one.
	select {
	case <-n.pending:
	default:
	}
	select {
	case n.pending <- p:
	default:
	}
}

// Cancel drops the pending pulse and any pulse queued before the call.
func (n *Notifier) Cancel() {
	n.mu.Lock()
	n.gen++
	n.mu.Unlock()
	select {
	case <-n.pending:
	default:
	}
}

func (n *Notifier) current(p pulse) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return p.gen == n.gen
}

func (n *Notifier) loop() {
	for {
		select {
		case p := <-n.pending:
			if !n.current(p) {
				continue
			}
			if err := n.notify(p.phase); err != nil {
				n.log.Debug("notification failed", "err", err)
			}
		case <-n.done:
			return
		}
	}
}

func (n *Notifier) notify(phase string) error {
	n.mu.Lock()
	replace := n.replace
	n.mu.Unlock()

	call := n.obj.Call("org.freedesktop.Notifications.Notify", 0,
		"respira",
		replace,
		"",
		pattern.Label(phase),
		"",
		[]string{},
		map[string]dbus.Variant{
			"urgency":   dbus.MakeVariant(byte(0)),
			"transient": dbus.MakeVariant(true),
		},
		int32(3000),
	)
	if call.Err != nil {
		return call.Err
	}
	var id uint32
	if err := call.Store(&id); err == nil {
		n.mu.Lock()
		n.replace = id
		n.mu.Unlock()
	}
	return nil
}

// Close stops the worker and the bus connection.
func (n *Notifier) Close() error {
	n.once.Do(func() { close(n.done) })
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
