package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/fakeyudi/respira/internal/audio"
)

// fileBackend decodes a local file or http(s) URL into the shared sink.
type fileBackend struct {
	sink   audio.Sink
	log    *log.Logger
	probe  *prober
	cancel context.CancelFunc

	mu      sync.Mutex
	status  Status
	ctrl    *beep.Ctrl
	stream  beep.StreamSeekCloser
	paused  bool
	stopped bool
}

func (e *Engine) engageFile(ctx context.Context, cfg Config) *fileBackend {
	ctx, cancel := context.WithCancel(ctx)
	b := &fileBackend{
		sink:   e.sink,
		log:    e.log.With("backend", "file"),
		probe:  newProber(e.probeWindow),
		cancel: cancel,
		status: Status{Kind: KindFile, State: StateLoading},
	}
	go b.load(ctx, cfg)
	return b
}

func (b *fileBackend) load(ctx context.Context, cfg Config) {
	rc, err := openSource(ctx, cfg.Source)
	if err != nil {
		b.fail(err)
		return
	}
	stream, format, err := decode(cfg.Source, rc)
	if err != nil {
		rc.Close()
		b.fail(err)
		return
	}

	var s beep.Streamer = stream
	if format.SampleRate != audio.Format.SampleRate {
		s = beep.Resample(4, format.SampleRate, audio.Format.SampleRate, s)
	}
	gain := &effects.Gain{Streamer: s, Gain: clampVolume(cfg.Volume) - 1}
	ctrl := &beep.Ctrl{Streamer: beep.Seq(gain, beep.Callback(func() { go b.ended() }))}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		stream.Close()
		return
	}
	b.ctrl = ctrl
	b.stream = stream
	ctrl.Paused = b.paused
	if b.paused {
		b.status.State = StatePaused
	} else {
		b.status.State = StatePlaying
	}
	b.sink.Add(ctrl)
	b.mu.Unlock()

	b.log.Info("external audio loaded", "source", cfg.Source, "rate", format.SampleRate)

	if n := stream.Len(); n > 0 {
		d := format.SampleRate.D(n)
		b.mu.Lock()
		b.status.Duration = d
		b.mu.Unlock()
		if !b.probe.deliver(d) {
			b.log.Debug("duration arrived after probe window", "duration", d)
		}
		return
	}
	b.probe.finish()
}

func (b *fileBackend) fail(err error) {
	b.mu.Lock()
	if !b.stopped {
		b.status.State = StateError
		b.status.Error = err.Error()
	}
	b.mu.Unlock()
	b.probe.finish()
	b.log.Warn("external audio failed", "err", err)
}

func (b *fileBackend) ended() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.status.State == StateError {
		return
	}
	b.status.State = StateIdle
	b.closeStreamLocked()
}

func (b *fileBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *fileBackend) Duration() <-chan time.Duration { return b.probe.ch }

func (b *fileBackend) Pause()  { b.setPaused(true) }
func (b *fileBackend) Resume() { b.setPaused(false) }

func (b *fileBackend) setPaused(p bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.paused = p
	if b.ctrl == nil {
		return
	}
	if b.status.State != StatePlaying && b.status.State != StatePaused {
		return
	}
	b.sink.Lock()
	b.ctrl.Paused = p
	b.sink.Unlock()
	if p {
		b.status.State = StatePaused
	} else {
		b.status.State = StatePlaying
	}
}

func (b *fileBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.cancel()
	if b.ctrl != nil {
		b.sink.Lock()
		b.ctrl.Streamer = nil
		b.sink.Unlock()
	}
	b.closeStreamLocked()
	if b.status.State != StateError {
		b.status.State = StateIdle
	}
	b.probe.finish()
}

func (b *fileBackend) closeStreamLocked() {
	if b.stream != nil {
		if err := b.stream.Close(); err != nil {
			b.log.Debug("close stream", "err", err)
		}
		b.stream = nil
	}
}

// maxBufferedSource caps how much of an http(s) body is held in memory so
// decoders can seek it and report a length.
const maxBufferedSource = 64 << 20

// bufferedSource is a fully downloaded http(s) body.
type bufferedSource struct {
	*bytes.Reader
}

func (bufferedSource) Close() error { return nil }

// openSource opens a local path, file:// URL or http(s) URL. Bodies with a
// known length up to maxBufferedSource are buffered; chunked or larger
// bodies are streamed and report no length.
func openSource(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return fetchSource(ctx, source)
	}
	p := source
	if err == nil && u.Scheme == "file" {
		p = u.Path
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return f, nil
}

func fetchSource(ctx context.Context, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source unreachable: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("source unreachable: %s", resp.Status)
	}
	if resp.ContentLength <= 0 || resp.ContentLength > maxBufferedSource {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, resp.ContentLength))
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	return bufferedSource{bytes.NewReader(data)}, nil
}

func decode(source string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	name := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		name = u.Path
	}
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	case ".ogg", ".oga":
		return vorbis.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
