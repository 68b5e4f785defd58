package synth

import (
	"errors"
	"fmt"
)

// ErrUnknownProfile is returned for a profile key with no table entry.
var ErrUnknownProfile = errors.New("unknown ambient profile")

// FilterKind selects the filter stage applied to raw noise.
type FilterKind int

const (
	NoFilter FilterKind = iota
	BandPass
	LowPass
)

func (k FilterKind) String() string {
	switch k {
	case BandPass:
		return "bandpass"
	case LowPass:
		return "lowpass"
	default:
		return "none"
	}
}

// Profile is one named ambient character.
type Profile struct {
	Key    string
	Label  string
	Filter FilterKind
	Freq   float64 // Hz
	Q      float64
	Volume float64 // default level, 0..1
}

// DefaultVolume applies when neither the profile nor the user sets a level.
const DefaultVolume = 0.25

var profiles = []Profile{
	{Key: "rain", Label: "Chuva", Filter: BandPass, Freq: 1000, Q: 0.8, Volume: 0.30},
	{Key: "wind", Label: "Vento", Filter: LowPass, Freq: 800, Q: 0.5, Volume: 0.25},
	{Key: "white", Label: "Ruído branco", Filter: NoFilter, Volume: 0.20},
}

// Profiles returns the profile table in display order.
func Profiles() []Profile {
	return append([]Profile(nil), profiles...)
}

// LookupProfile finds a profile by key.
func LookupProfile(key string) (Profile, error) {
	for _, p := range profiles {
		if p.Key == key {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, key)
}
