package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Process is a running player reachable over Conn.
type Process interface {
	Conn() net.Conn
	// Kill terminates the player and removes anything it left behind.
	Kill() error
}

// Launcher starts a player for source at volume (0..1).
type Launcher interface {
	Launch(ctx context.Context, source string, volume float64) (Process, error)
}

const durationObserver = 1

// playerBackend drives an external player process. Commands go through a
// single worker so pause and resume stay ordered.
type playerBackend struct {
	launcher Launcher
	timeout  time.Duration
	log      *log.Logger
	probe    *prober
	cancel   context.CancelFunc
	kick     chan struct{}
	released chan struct{}
	once     sync.Once

	mu      sync.Mutex
	status  Status
	paused  bool
	stopped bool
	proc    Process
	client  *Client
}

func (e *Engine) engagePlayer(ctx context.Context, cfg Config) *playerBackend {
	ctx, cancel := context.WithCancel(ctx)
	b := &playerBackend{
		launcher: e.launcher,
		timeout:  e.requestTimeout,
		log:      e.log.With("backend", "player"),
		probe:    newProber(e.probeWindow),
		cancel:   cancel,
		kick:     make(chan struct{}, 1),
		released: make(chan struct{}),
		status:   Status{Kind: KindPlayer, State: StateLoading},
	}
	go b.run(ctx, cfg)
	return b
}

func (b *playerBackend) run(ctx context.Context, cfg Config) {
	proc, err := b.launcher.Launch(ctx, cfg.Source, clampVolume(cfg.Volume))
	if err != nil {
		b.fail(fmt.Errorf("start player: %w", err))
		b.release(nil, nil)
		return
	}
	client := NewClient(proc.Conn(), b.timeout, b.log)

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.release(client, proc)
		return
	}
	b.proc, b.client = proc, client
	b.mu.Unlock()

	if _, err := client.Command(ctx, "observe_property", durationObserver, "duration"); err != nil {
		b.fail(fmt.Errorf("observe duration: %w", err))
		b.shutdown()
		return
	}
	if _, err := client.Command(ctx, "set_property", "pause", false); err != nil {
		b.fail(fmt.Errorf("start playback: %w", err))
		b.shutdown()
		return
	}

	b.mu.Lock()
	if !b.stopped {
		b.status.State = StatePlaying
		if b.paused {
			b.signal()
		}
	}
	b.mu.Unlock()
	b.log.Info("player started", "source", cfg.Source)

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				b.mu.Lock()
				stopped := b.stopped
				b.mu.Unlock()
				if !stopped {
					b.fail(errors.New("player exited"))
				}
				b.shutdown()
				return
			}
			b.handle(ev)
		case <-b.kick:
			b.mu.Lock()
			want := b.paused
			b.mu.Unlock()
			if _, err := client.Command(ctx, "set_property", "pause", want); err != nil {
				b.fail(fmt.Errorf("pause command: %w", err))
				b.shutdown()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *playerBackend) handle(ev Event) {
	switch ev.Event {
	case "property-change":
		if ev.ID != durationObserver || len(ev.Data) == 0 {
			return
		}
		var secs float64
		if err := json.Unmarshal(ev.Data, &secs); err != nil || secs <= 0 {
			return
		}
		d := time.Duration(secs * float64(time.Second))
		b.mu.Lock()
		b.status.Duration = d
		b.mu.Unlock()
		if b.probe.deliver(d) {
			b.log.Debug("player duration", "duration", d)
		}
	case "end-file":
		if ev.Reason == "error" {
			reason := ev.FileError
			if reason == "" {
				reason = "playback failed"
			}
			b.fail(errors.New(reason))
			return
		}
		b.mu.Lock()
		if !b.stopped && b.status.State != StateError {
			b.status.State = StateIdle
		}
		b.mu.Unlock()
	}
}

func (b *playerBackend) fail(err error) {
	b.mu.Lock()
	if !b.stopped {
		b.status.State = StateError
		b.status.Error = err.Error()
	}
	b.mu.Unlock()
	b.probe.finish()
	b.log.Warn("player failed", "err", err)
}

// signal wakes the command worker. Callers hold mu.
func (b *playerBackend) signal() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *playerBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *playerBackend) Duration() <-chan time.Duration { return b.probe.ch }

func (b *playerBackend) Pause()  { b.setPaused(true) }
func (b *playerBackend) Resume() { b.setPaused(false) }

func (b *playerBackend) setPaused(p bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.paused == p {
		return
	}
	b.paused = p
	switch b.status.State {
	case StatePlaying, StatePaused:
		if p {
			b.status.State = StatePaused
		} else {
			b.status.State = StatePlaying
		}
		b.signal()
	}
}

// Stop marks the backend stopped and tears the player down in the
// background.
func (b *playerBackend) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	if b.status.State != StateError {
		b.status.State = StateIdle
	}
	client, proc := b.client, b.proc
	b.mu.Unlock()

	b.probe.finish()
	if client == nil {
		// run has not attached yet; it releases the player itself.
		b.cancel()
		return
	}
	go func() {
		b.quit(client)
		b.cancel()
		b.release(client, proc)
	}()
}

// shutdown is Stop for failures discovered by the worker.
func (b *playerBackend) shutdown() {
	b.mu.Lock()
	b.stopped = true
	client, proc := b.client, b.proc
	b.mu.Unlock()
	b.probe.finish()
	b.cancel()
	b.release(client, proc)
}

func (b *playerBackend) quit(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if _, err := client.Command(ctx, "quit"); err != nil && !errors.Is(err, ErrClosed) {
		b.log.Debug("quit player", "err", err)
	}
}

func (b *playerBackend) release(client *Client, proc Process) {
	b.once.Do(func() {
		if client != nil {
			client.Close()
		}
		if proc != nil {
			if err := proc.Kill(); err != nil {
				b.log.Debug("kill player", "err", err)
			}
		}
		close(b.released)
	})
}

// MPVLauncher runs mpv without video and talks to it over a unix socket.
type MPVLauncher struct {
	Command     string
	DialTimeout time.Duration
}

// Launch starts the player paused; playback begins once the backend has
// registered its observers.
func (l MPVLauncher) Launch(ctx context.Context, source string, volume float64) (Process, error) {
	bin := l.Command
	if bin == "" {
		bin = "mpv"
	}
	dir, err := os.MkdirTemp("", "respira-player-")
	if err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	sock := filepath.Join(dir, "ipc.sock")
	cmd := exec.Command(bin,
		"--no-video",
		"--no-terminal",
		"--idle=no",
		"--pause",
		"--input-ipc-server="+sock,
		fmt.Sprintf("--volume=%d", int(volume*100)),
		source,
	)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	p := &mpvProcess{cmd: cmd, dir: dir}

	timeout := l.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	for {
		conn, err := d.DialContext(dctx, "unix", sock)
		if err == nil {
			p.conn = conn
			return p, nil
		}
		select {
		case <-dctx.Done():
			p.Kill()
			return nil, fmt.Errorf("connect to player: %w", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

type mpvProcess struct {
	cmd  *exec.Cmd
	conn net.Conn
	dir  string
	once sync.Once
}

func (p *mpvProcess) Conn() net.Conn { return p.conn }

func (p *mpvProcess) Kill() error {
	var err error
	p.once.Do(func() {
		if p.conn != nil {
			p.conn.Close()
		}
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
			_ = p.cmd.Wait()
		}
		err = os.RemoveAll(p.dir)
	})
	return err
}
