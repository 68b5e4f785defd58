// Package ambient manages the set of independently toggled noise channels.
package ambient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/synth"
)

var (
	// ErrUnknownChannel is returned for a key with no ambient profile.
	ErrUnknownChannel = errors.New("unknown ambient channel")
	// ErrExternalAudioActive is returned when turning a channel on while an
	// external audio source holds exclusive control.
	ErrExternalAudioActive = errors.New("external audio is active")
)

// Voice is a playing channel.
type Voice interface {
	SetVolume(level float64)
	Stop()
}

// Factory starts a voice for key at volume.
type Factory func(key string, volume float64) (Voice, error)

// SynthFactory returns a Factory backed by s with noise buffers of seconds.
func SynthFactory(s *synth.Synthesizer, seconds int) Factory {
	return func(key string, volume float64) (Voice, error) {
		h, err := s.Create(key, seconds, volume)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Channel is the presentation view of one ambient channel.
type Channel struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
	Volume float64 `json:"volume"`
}

type channel struct {
	label  string
	volume float64
	voice  Voice // nil while inactive
}

// Mixer owns at most one voice per channel key.
type Mixer struct {
	factory Factory
	log     *log.Logger

	mu        sync.Mutex
	channels  map[string]*channel
	order     []string
	exclusive bool
}

// New returns a Mixer with one channel per synth profile. volumes overrides
// the profile default level per key.
func New(factory Factory, volumes map[string]float64, logger *log.Logger) *Mixer {
	m := &Mixer{
		factory:  factory,
		log:      logging.OrDiscard(logger),
		channels: make(map[string]*channel),
	}
	for _, p := range synth.Profiles() {
		vol := p.Volume
		if v, ok := volumes[p.Key]; ok {
			vol = clamp(v)
		}
		m.channels[p.Key] = &channel{label: p.Label, volume: vol}
		m.order = append(m.order, p.Key)
	}
	return m
}

// Toggle flips the channel and returns its new active state.
func (m *Mixer) Toggle(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[key]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownChannel, key)
	}
	if ch.voice != nil {
		ch.voice.Stop()
		ch.voice = nil
		m.log.Debug("ambient channel off", "key", key)
		return false, nil
	}
	if m.exclusive {
		return false, ErrExternalAudioActive
	}
	v, err := m.factory(key, ch.volume)
	if err != nil {
		return false, fmt.Errorf("start ambient %s: %w", key, err)
	}
	ch.voice = v
	m.log.Debug("ambient channel on", "key", key, "volume", ch.volume)
	return true, nil
}

// SetVolume remembers level for key and applies it if the channel is live.
func (m *Mixer) SetVolume(key string, level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, key)
	}
	ch.volume = clamp(level)
	if ch.voice != nil {
		ch.voice.SetVolume(ch.volume)
	}
	return nil
}

// StopAll stops every live channel and returns how many were stopped.
func (m *Mixer) StopAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopAllLocked()
}

func (m *Mixer) stopAllLocked() int {
	n := 0
	for _, key := range m.order {
		ch := m.channels[key]
		if ch.voice != nil {
			ch.voice.Stop()
			ch.voice = nil
			n++
		}
	}
	return n
}

// SetExclusive marks external audio as engaged or released. Engaging stops
// every channel and blocks new activations until released.
func (m *Mixer) SetExclusive(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exclusive = on
	if on {
		if n := m.stopAllLocked(); n > 0 {
			m.log.Info("ambient channels stopped for external audio", "count", n)
		}
	}
}

// Live returns the number of active channels.
func (m *Mixer) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ch := range m.channels {
		if ch.voice != nil {
			n++
		}
	}
	return n
}

// Snapshot returns every channel in display order.
func (m *Mixer) Snapshot() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, 0, len(m.order))
	for _, key := range m.order {
		ch := m.channels[key]
		out = append(out, Channel{Key: key, Label: ch.label, Active: ch.voice != nil, Volume: ch.volume})
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
