// Package audio owns the single speaker output. Every sound source in a
// session (ambient noise, external media, tone pulses) is added to one
// beep.Mixer that an oto player drains as float32 stereo frames.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/hajimehoshi/oto/v2"
)

const (
	SampleRate   = 44100
	ChannelCount = 2
)

// Format is the sample format every streamer added to a Sink must use.
var Format = beep.Format{SampleRate: beep.SampleRate(SampleRate), NumChannels: ChannelCount, Precision: 4}

// Sink accepts streamers for playback. Lock/Unlock guard mutation of any
// streamer the sink is currently reading, such as a beep.Ctrl or effects.Gain.
type Sink interface {
	Add(s ...beep.Streamer)
	Lock()
	Unlock()
}

// Mix is a Sink that renders its streamers as float32 little-endian stereo
// through Read. Silence is produced when nothing is playing.
type Mix struct {
	mu    sync.Mutex
	mixer beep.Mixer
	buf   [][2]float64
}

// NewMix returns an empty Mix.
func NewMix() *Mix {
	return &Mix{}
}

func (m *Mix) Add(s ...beep.Streamer) {
	m.mu.Lock()
	m.mixer.Add(s...)
	m.mu.Unlock()
}

func (m *Mix) Lock()   { m.mu.Lock() }
func (m *Mix) Unlock() { m.mu.Unlock() }

// Len reports how many streamers are still playing.
func (m *Mix) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mixer.Len()
}

// Clear drops every streamer.
func (m *Mix) Clear() {
	m.mu.Lock()
	m.mixer.Clear()
	m.mu.Unlock()
}

// Read implements io.Reader for oto. It never returns an error.
func (m *Mix) Read(p []byte) (int, error) {
	const frameBytes = 4 * ChannelCount
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if cap(m.buf) < frames {
		m.buf = make([][2]float64, frames)
	}
	samples := m.buf[:frames]

	m.mu.Lock()
	n, _ := m.mixer.Stream(samples)
	m.mu.Unlock()
	for i := n; i < frames; i++ {
		samples[i] = [2]float64{}
	}

	for i, s := range samples {
		off := i * frameBytes
		binary.LittleEndian.PutUint32(p[off:], math.Float32bits(float32(clamp(s[0]))))
		binary.LittleEndian.PutUint32(p[off+4:], math.Float32bits(float32(clamp(s[1]))))
	}
	return frames * frameBytes, nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Output is a Mix connected to the system audio device.
type Output struct {
	*Mix
	ctx    *oto.Context
	player oto.Player
}

// Open initialises the audio device and starts draining a new Mix into it.
// It blocks until the device is ready.
func Open() (*Output, error) {
	ctx, ready, err := oto.NewContext(SampleRate, ChannelCount, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	mix := NewMix()
	player := ctx.NewPlayer(mix)
	player.Play()
	return &Output{Mix: mix, ctx: ctx, player: player}, nil
}

// Close stops playback and releases the player.
func (o *Output) Close() error {
	o.Clear()
	return o.player.Close()
}
