// Package external plays one user-supplied audio source alongside a session:
// a media file or URL decoded in-process, or an external player process
// driven over its IPC socket. Both kinds sit behind Backend.
package external

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/respira/internal/audio"
	"github.com/fakeyudi/respira/internal/logging"
)

// Kind selects the backend implementation.
type Kind string

const (
	KindNone   Kind = "none"
	KindFile   Kind = "file"
	KindPlayer Kind = "player"
)

// State is the runtime state of a backend.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// Status is a point-in-time view of a backend.
type Status struct {
	Kind     Kind          `json:"kind"`
	State    State         `json:"state"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"` // zero while unknown
}

// Backend is one engaged external source. No method blocks on I/O; failures
// show up as StateError in Status.
type Backend interface {
	Status() Status
	// Duration delivers the probed length at most once, then closes. It closes
	// without a value when the source length is unknown or the probe window
	// expires first.
	Duration() <-chan time.Duration
	Pause()
	Resume()
	// Stop releases every resource the backend holds. Safe to call twice.
	Stop()
}

const (
	DefaultProbeWindow    = 10 * time.Second
	DefaultRequestTimeout = 2 * time.Second
)

// Engine creates backends.
type Engine struct {
	sink           audio.Sink
	launcher       Launcher
	probeWindow    time.Duration
	requestTimeout time.Duration
	log            *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProbeWindow sets how long a backend waits for a duration.
func WithProbeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.probeWindow = d
		}
	}
}

// WithRequestTimeout bounds each player IPC request.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// NewEngine returns an Engine that plays files into sink and starts players
// with launcher.
func NewEngine(sink audio.Sink, launcher Launcher, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		sink:           sink,
		launcher:       launcher,
		probeWindow:    DefaultProbeWindow,
		requestTimeout: DefaultRequestTimeout,
		log:            logging.OrDiscard(logger),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Engage starts playback of cfg and returns immediately. Loading continues in
// the background until Stop or ctx is cancelled.
func (e *Engine) Engage(ctx context.Context, cfg Config) Backend {
	switch cfg.Kind {
	case KindFile:
		if e.sink == nil {
			return failed(cfg.Kind, "no audio output available")
		}
		return e.engageFile(ctx, cfg)
	case KindPlayer:
		if e.launcher == nil {
			return failed(cfg.Kind, "no player configured")
		}
		return e.engagePlayer(ctx, cfg)
	default:
		return failed(cfg.Kind, "unsupported audio kind "+string(cfg.Kind))
	}
}

// prober delivers at most one duration inside a window.
type prober struct {
	mu     sync.Mutex
	ch     chan time.Duration
	closed bool
	timer  *time.Timer
}

func newProber(window time.Duration) *prober {
	p := &prober{ch: make(chan time.Duration, 1)}
	p.mu.Lock()
	p.timer = time.AfterFunc(window, p.finish)
	p.mu.Unlock()
	return p
}

// deliver reports whether d was handed to the consumer.
func (p *prober) deliver(d time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.ch <- d
	p.closeLocked()
	return true
}

func (p *prober) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closeLocked()
	}
}

func (p *prober) closeLocked() {
	p.closed = true
	p.timer.Stop()
	close(p.ch)
}

// failedBackend is returned when a config cannot be engaged at all.
type failedBackend struct {
	status Status
	ch     chan time.Duration
}

func failed(kind Kind, reason string) *failedBackend {
	ch := make(chan time.Duration)
	close(ch)
	return &failedBackend{status: Status{Kind: kind, State: StateError, Error: reason}, ch: ch}
}

func (f *failedBackend) Status() Status                 { return f.status }
func (f *failedBackend) Duration() <-chan time.Duration { return f.ch }
func (f *failedBackend) Pause()                         {}
func (f *failedBackend) Resume()                        {}
func (f *failedBackend) Stop()                          {}
