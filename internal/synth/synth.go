// Package synth generates looped noise shaped into named ambient profiles.
// Each Handle owns one chain: noise buffer → loop → filter → gain → ctrl,
// added to a shared audio.Sink.
package synth

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/fakeyudi/respira/internal/audio"
)

// Synthesizer creates noise handles on one sink.
type Synthesizer struct {
	sink audio.Sink

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Synthesizer adding its output to sink. A nil rng uses a
// randomly seeded source.
func New(sink audio.Sink, rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthesizer{sink: sink, rng: rng}
}

// Create starts a looped noise voice for profile at volume. The noise buffer
// holds seconds of audio and loops indefinitely.
func (s *Synthesizer) Create(profile string, seconds int, volume float64) (*Handle, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, err
	}
	if seconds <= 0 {
		return nil, fmt.Errorf("noise buffer length must be positive, got %d", seconds)
	}

	buf := beep.NewBuffer(audio.Format)
	buf.Append(s.noise(seconds * int(audio.Format.SampleRate)))
	loop, err := beep.Loop2(buf.Streamer(0, buf.Len()))
	if err != nil {
		return nil, fmt.Errorf("loop noise buffer: %w", err)
	}

	h := &Handle{sink: s.sink}
	h.gain = &effects.Gain{Streamer: newBiquad(loop, p.Filter, p.Freq, p.Q, audio.Format.SampleRate)}
	h.gain.Gain = gainFor(volume)
	h.volume = clampLevel(volume)
	h.ctrl = &beep.Ctrl{Streamer: h.gain}
	s.sink.Add(h.ctrl)
	return h, nil
}

// noise returns a finite streamer of uniform samples in [-1, 1). The same
// value goes to both channels.
func (s *Synthesizer) noise(frames int) beep.Streamer {
	s.mu.Lock()
	data := make([]float64, frames)
	for i := range data {
		data[i] = s.rng.Float64()*2 - 1
	}
	s.mu.Unlock()

	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(data) {
			return 0, false
		}
		n := copy2(samples, data[pos:])
		pos += n
		return n, true
	})
}

func copy2(dst [][2]float64, src []float64) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = [2]float64{src[i], src[i]}
	}
	return n
}

// Handle is one playing noise voice.
type Handle struct {
	sink audio.Sink
	ctrl *beep.Ctrl
	gain *effects.Gain

	mu      sync.Mutex
	volume  float64
	stopped bool
}

// Volume returns the current level.
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// SetVolume changes the level without touching the buffer. Levels are
// clamped to 0..1. No-op after Stop.
func (h *Handle) SetVolume(level float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.volume = clampLevel(level)
	h.sink.Lock()
	h.gain.Gain = gainFor(level)
	h.sink.Unlock()
}

// Stop detaches the chain from the sink. Safe to call more than once.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	h.sink.Lock()
	h.ctrl.Streamer = nil
	h.sink.Unlock()
	h.gain = nil
}

// Stopped reports whether Stop was called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// effects.Gain scales by 1+Gain.
func gainFor(level float64) float64 {
	return clampLevel(level) - 1
}

func clampLevel(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
