// Package session drives one guided session at a time. The Controller owns
// the phase machine, the engaged external audio, and the ambient mixer, and
// is the single place where ticks, duration probes and user commands are
// serialized.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fakeyudi/respira/internal/ambient"
	"github.com/fakeyudi/respira/internal/clock"
	"github.com/fakeyudi/respira/internal/external"
	"github.com/fakeyudi/respira/internal/haptic"
	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/progress"
)

var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoSession is returned when a command needs an active session.
	ErrNoSession = errors.New("no active session")
)

// Engager starts external audio.
type Engager interface {
	Engage(ctx context.Context, cfg external.Config) external.Backend
}

// Recorder commits finished sessions.
type Recorder interface {
	Commit(ctx context.Context, m phase.Modality, elapsed int) (ledger.Stats, error)
}

// Request describes a session to start.
type Request struct {
	Modality phase.Modality
	Label    string
	Pattern  pattern.Pattern // breathing only
	Seconds  int             // 0 = until stopped (breathing only)
	Audio    external.Config
	Vibrate  bool
}

// Options wires a Controller. Mixer and Ledger are required.
type Options struct {
	Mixer  *ambient.Mixer
	Audio  Engager
	Ledger Recorder
	Remote progress.Committer
	Pulser haptic.Pulser
	Ticker clock.TickerFactory
	Clock  clock.Clock
	Log    *log.Logger
}

// Result is the outcome of a finished session.
type Result struct {
	ID        string         `json:"id"`
	Modality  phase.Modality `json:"modality"`
	Label     string         `json:"label"`
	Elapsed   int            `json:"elapsed"`
	Completed bool           `json:"completed"` // false when stopped early
	Stats     ledger.Stats   `json:"stats"`
}

// Snapshot is the presentation view of the controller.
type Snapshot struct {
	Run        phase.Snapshot    `json:"run"`
	Ambient    []ambient.Channel `json:"ambient"`
	Audio      *external.Status  `json:"audio,omitempty"`
	Reconciled bool              `json:"reconciled"`
	Last       *Result           `json:"last,omitempty"`
}

// Controller runs sessions.
type Controller struct {
	mixer   *ambient.Mixer
	audio   Engager
	ledger  Recorder
	remote  progress.Committer
	pulser  haptic.Pulser
	ticker  clock.TickerFactory
	clock   clock.Clock
	log     *log.Logger
	pending sync.WaitGroup

	mu         sync.Mutex
	machine    *phase.Machine
	gen        uint64
	cancel     context.CancelFunc
	runCtx     context.Context
	tick       clock.Ticker
	tickGen    uint64
	tickCancel context.CancelFunc
	backend    external.Backend
	audioCfg   external.Config
	vibrate    bool
	reconciled bool
	last       *Result
	subs       map[int]chan Update
	nextSub    int
}

// New returns an idle Controller.
func New(opts Options) *Controller {
	c := &Controller{
		mixer:   opts.Mixer,
		audio:   opts.Audio,
		ledger:  opts.Ledger,
		remote:  opts.Remote,
		pulser:  opts.Pulser,
		ticker:  opts.Ticker,
		clock:   opts.Clock,
		log:     logging.OrDiscard(opts.Log),
		machine: phase.New(),
		subs:    make(map[int]chan Update),
	}
	if c.remote == nil {
		c.remote = progress.Nop{}
	}
	if c.pulser == nil {
		c.pulser = haptic.Nop{}
	}
	if c.ticker == nil {
		c.ticker = clock.NewTicker
	}
	if c.clock == nil {
		c.clock = clock.System{}
	}
	return c
}

// Start begins a session and returns immediately. External audio, when
// configured, is engaged after every ambient channel has been stopped.
func (c *Controller) Start(ctx context.Context, req Request) (phase.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.machine.State(); s == phase.Running || s == phase.Paused {
		return phase.Snapshot{}, ErrSessionActive
	}
	spec := phase.Spec{
		ID:       uuid.NewString(),
		Modality: req.Modality,
		Label:    req.Label,
		Pattern:  req.Pattern,
		Total:    req.Seconds,
		Started:  c.clock.Now(),
	}
	if err := c.machine.Start(spec); err != nil {
		return phase.Snapshot{}, fmt.Errorf("start session: %w", err)
	}

	c.gen++
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runCtx = runCtx
	c.vibrate = req.Vibrate
	c.reconciled = false
	c.audioCfg = external.Config{Kind: external.KindNone}

	var probe <-chan time.Duration
	if req.Audio.Enabled() && c.audio != nil {
		c.mixer.SetExclusive(true)
		c.backend = c.audio.Engage(runCtx, req.Audio)
		c.audioCfg = req.Audio
		probe = c.backend.Duration()
	}

	c.startTickerLocked()
	if probe != nil {
		go c.watchProbe(runCtx, c.gen, probe)
	}

	snap := c.machine.Snapshot()
	c.log.Info("session started", "id", spec.ID, "modality", spec.Modality, "label", spec.Label, "seconds", spec.Total, "audio", req.Audio.Kind)
	c.emitLocked(Update{Kind: UpdateStarted, Run: snap})
	return snap, nil
}

// startTickerLocked starts a fresh one-second tick source for the current
// run. A paused run has no tick source at all.
func (c *Controller) startTickerLocked() {
	ctx, cancel := context.WithCancel(c.runCtx)
	c.tickGen++
	c.tickCancel = cancel
	c.tick = c.ticker(time.Second)
	go c.tickLoop(ctx, c.gen, c.tickGen, c.tick)
}

func (c *Controller) stopTickerLocked() {
	if c.tickCancel != nil {
		c.tickCancel()
		c.tickCancel = nil
	}
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	c.tickGen++
}

func (c *Controller) tickLoop(ctx context.Context, gen, tickGen uint64, t clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if !c.advance(gen, tickGen) {
				return
			}
		}
	}
}

func (c *Controller) watchProbe(ctx context.Context, gen uint64, probe <-chan time.Duration) {
	select {
	case <-ctx.Done():
	case d, ok := <-probe:
		if ok {
			c.applyProbe(gen, d)
		}
	}
}

// advance ticks the run of generation gen and reports whether the tick
// source that fired is still the live one.
func (c *Controller) advance(gen, tickGen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || tickGen != c.tickGen {
		return false
	}
	return c.handleLocked(c.machine.Tick())
}

// applyProbe is the session length reconciler: the first probed duration
// of a running, finite run replaces its total. Later probes, probes while
// paused, and probes for a stopped run are dropped.
func (c *Controller) applyProbe(gen uint64, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	if c.reconciled {
		c.log.Debug("ignoring repeated duration probe", "duration", d)
		return true
	}
	if c.machine.State() != phase.Running {
		c.log.Debug("ignoring duration probe outside running state", "duration", d, "state", c.machine.State())
		return true
	}
	c.reconciled = true
	seconds := int(math.Round(d.Seconds()))
	snap := c.machine.Snapshot()
	if seconds <= 0 || snap.Total == 0 || seconds == snap.Total {
		return true
	}
	events, ok := c.machine.Retarget(seconds)
	if !ok {
		return true
	}
	c.log.Info("session length follows audio", "from", snap.Total, "to", seconds, "elapsed", snap.Elapsed)
	return c.handleLocked(events)
}

// handleLocked reacts to machine events and reports whether the run goes on.
func (c *Controller) handleLocked(events []phase.Event) bool {
	for _, ev := range events {
		switch ev.Kind {
		case phase.EventTick:
			c.emitLocked(Update{Kind: UpdateTick, Run: c.machine.Snapshot()})
		case phase.EventPhaseChanged:
			if c.vibrate {
				c.pulser.Pulse(ev.Phase)
			}
			c.emitLocked(Update{Kind: UpdatePhase, Run: c.machine.Snapshot(), Phase: ev.Phase})
		case phase.EventRetargeted:
			c.emitLocked(Update{Kind: UpdateRetargeted, Run: c.machine.Snapshot()})
		case phase.EventCompleted:
			c.finishLocked(ev.Elapsed, true)
			return false
		}
	}
	return true
}

// Pause freezes the run, stops its tick source and pauses external audio.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.machine.Pause() {
		return ErrNoSession
	}
	c.stopTickerLocked()
	if c.backend != nil {
		c.backend.Pause()
	}
	c.emitLocked(Update{Kind: UpdatePaused, Run: c.machine.Snapshot()})
	return nil
}

// Resume continues a paused run on a new tick source, so the first second
// after resuming is a whole second.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.machine.Resume() {
		return ErrNoSession
	}
	c.startTickerLocked()
	if c.backend != nil {
		c.backend.Resume()
	}
	c.emitLocked(Update{Kind: UpdateResumed, Run: c.machine.Snapshot()})
	return nil
}

// Stop ends the run early. The elapsed time is still recorded.
func (c *Controller) Stop() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed, ok := c.machine.Stop()
	if !ok {
		return Result{}, ErrNoSession
	}
	return c.finishLocked(elapsed, false), nil
}

func (c *Controller) finishLocked(elapsed int, completed bool) Result {
	spec := c.machine.Spec()
	c.gen++
	c.stopTickerLocked()
	if pc, ok := c.pulser.(haptic.Canceler); ok {
		pc.Cancel()
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.runCtx = nil
	audioCfg := c.audioCfg
	c.releaseLocked()

	stats, err := c.ledger.Commit(context.Background(), spec.Modality, elapsed)
	if err != nil {
		c.log.Warn("stats not saved", "err", err)
	}
	res := Result{ID: spec.ID, Modality: spec.Modality, Label: spec.Label, Elapsed: elapsed, Completed: completed, Stats: stats}
	c.last = &res
	c.mirrorLocked(res, audioCfg)

	kind := UpdateStopped
	if completed {
		kind = UpdateCompleted
	}
	c.log.Info("session finished", "id", spec.ID, "elapsed", elapsed, "completed", completed)
	c.emitLocked(Update{Kind: kind, Run: c.machine.Snapshot(), Result: &res})
	return res
}

// mirrorLocked sends the result to the remote progress service in the
// background.
func (c *Controller) mirrorLocked(res Result, audioCfg external.Config) {
	var audio *progress.CustomAudio
	if audioCfg.Enabled() {
		audio = &progress.CustomAudio{Type: string(audioCfg.Kind), URL: audioCfg.Source}
	}
	entry := progress.NewEntry(string(res.Modality), res.Elapsed, res.Label, c.clock.Now(), audio)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := c.remote.Commit(ctx, entry)
		switch {
		case errors.Is(err, progress.ErrDisabled):
		case err != nil:
			c.log.Warn("remote progress not saved", "err", err)
		default:
			c.log.Debug("remote progress saved", "entry", entry.ID)
		}
	}()
}

// releaseLocked stops external audio and every ambient channel.
func (c *Controller) releaseLocked() {
	if c.backend != nil {
		c.backend.Stop()
		c.backend = nil
	}
	c.audioCfg = external.Config{Kind: external.KindNone}
	c.mixer.StopAll()
	c.mixer.SetExclusive(false)
}

// Release stops all audio while no session is active, for example when the
// user switches session type.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.machine.State(); s == phase.Running || s == phase.Paused {
		return ErrSessionActive
	}
	c.releaseLocked()
	c.machine.Reset()
	return nil
}

// ToggleAmbient flips an ambient channel.
func (c *Controller) ToggleAmbient(key string) (bool, error) {
	on, err := c.mixer.Toggle(key)
	if err == nil {
		c.emit(Update{Kind: UpdateAmbient})
	}
	return on, err
}

// SetAmbientVolume sets an ambient channel's level.
func (c *Controller) SetAmbientVolume(key string, level float64) error {
	err := c.mixer.SetVolume(key, level)
	if err == nil {
		c.emit(Update{Kind: UpdateAmbient})
	}
	return err
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Run:        c.machine.Snapshot(),
		Ambient:    c.mixer.Snapshot(),
		Reconciled: c.reconciled,
		Last:       c.last,
	}
	if c.backend != nil {
		st := c.backend.Status()
		s.Audio = &st
	}
	return s
}

// Close stops any active session, releases audio and waits for pending
// remote commits until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	if _, err := c.Stop(); err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	c.mu.Lock()
	c.releaseLocked()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
