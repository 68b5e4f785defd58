package ambient

import (
	"errors"
	"math/rand/v2"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/respira/internal/audio"
	"github.com/fakeyudi/respira/internal/synth"
)

type fakeVoice struct {
	volume  float64
	stopped int
}

func (v *fakeVoice) SetVolume(level float64) { v.volume = level }
func (v *fakeVoice) Stop()                   { v.stopped++ }

type fakeFactory struct {
	voices []*fakeVoice
	fail   error
}

func (f *fakeFactory) create(key string, volume float64) (Voice, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	v := &fakeVoice{volume: volume}
	f.voices = append(f.voices, v)
	return v, nil
}

func (f *fakeFactory) live() int {
	n := 0
	for _, v := range f.voices {
		if v.stopped == 0 {
			n++
		}
	}
	return n
}

func active(m *Mixer, key string) bool {
	for _, c := range m.Snapshot() {
		if c.Key == key {
			return c.Active
		}
	}
	return false
}

// Feature: respira, Property 4: Toggling a channel twice restores its state and leaks no voice
func TestToggleTwiceRestoresState(t *testing.T) {
	keys := []string{"rain", "wind", "white"}
	rapid.Check(t, func(t *rapid.T) {
		f := &fakeFactory{}
		m := New(f.create, nil, nil)
		// random prefix of toggles
		for _, k := range rapid.SliceOfN(rapid.SampledFrom(keys), 0, 10).Draw(t, "prefix") {
			if _, err := m.Toggle(k); err != nil {
				t.Fatal(err)
			}
		}
		key := rapid.SampledFrom(keys).Draw(t, "key")
		before := active(m, key)
		liveBefore := f.live()

		if _, err := m.Toggle(key); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Toggle(key); err != nil {
			t.Fatal(err)
		}
		if active(m, key) != before {
			t.Fatalf("%s: active %v after double toggle, want %v", key, !before, before)
		}
		if f.live() != liveBefore || m.Live() != liveBefore {
			t.Fatalf("live voices: factory %d mixer %d, want %d", f.live(), m.Live(), liveBefore)
		}
	})
}

func TestToggleUnknown(t *testing.T) {
	m := New((&fakeFactory{}).create, nil, nil)
	if _, err := m.Toggle("thunder"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if err := m.SetVolume("thunder", 0.5); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestSetVolumeRememberedWhileInactive(t *testing.T) {
	f := &fakeFactory{}
	m := New(f.create, map[string]float64{"rain": 0.6}, nil)

	if err := m.SetVolume("wind", 0.9); err != nil {
		t.Fatal(err)
	}
	if len(f.voices) != 0 {
		t.Fatal("SetVolume on inactive channel must not start a voice")
	}
	if _, err := m.Toggle("wind"); err != nil {
		t.Fatal(err)
	}
	if f.voices[0].volume != 0.9 {
		t.Errorf("wind started at %v, want 0.9", f.voices[0].volume)
	}
	if _, err := m.Toggle("rain"); err != nil {
		t.Fatal(err)
	}
	if f.voices[1].volume != 0.6 {
		t.Errorf("rain started at %v, want configured 0.6", f.voices[1].volume)
	}
	if err := m.SetVolume("rain", 2); err != nil {
		t.Fatal(err)
	}
	if f.voices[1].volume != 1 {
		t.Errorf("live volume should clamp to 1, got %v", f.voices[1].volume)
	}
}

func TestExclusiveStopsAndBlocks(t *testing.T) {
	f := &fakeFactory{}
	m := New(f.create, nil, nil)
	m.Toggle("rain")
	m.Toggle("white")

	m.SetExclusive(true)
	if f.live() != 0 || m.Live() != 0 {
		t.Fatalf("expected all channels stopped, %d live", f.live())
	}
	if _, err := m.Toggle("rain"); !errors.Is(err, ErrExternalAudioActive) {
		t.Fatalf("expected ErrExternalAudioActive, got %v", err)
	}

	m.SetExclusive(false)
	on, err := m.Toggle("rain")
	if err != nil || !on {
		t.Fatalf("expected rain on after release: %v %v", on, err)
	}
}

func TestFactoryFailureLeavesChannelOff(t *testing.T) {
	f := &fakeFactory{fail: errors.New("no device")}
	m := New(f.create, nil, nil)
	if _, err := m.Toggle("rain"); err == nil {
		t.Fatal("expected error")
	}
	if active(m, "rain") {
		t.Fatal("channel must stay inactive after failure")
	}
}

func TestSynthFactoryOnMix(t *testing.T) {
	mix := audio.NewMix()
	s := synth.New(mix, rand.New(rand.NewPCG(3, 4)))
	m := New(SynthFactory(s, 1), nil, nil)
	if _, err := m.Toggle("wind"); err != nil {
		t.Fatal(err)
	}
	if mix.Len() != 1 {
		t.Fatalf("expected one streamer in mix, got %d", mix.Len())
	}
	if n := m.StopAll(); n != 1 {
		t.Fatalf("StopAll: got %d", n)
	}
}
