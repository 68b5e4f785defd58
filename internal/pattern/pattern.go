// Package pattern defines breathing patterns: an ordered cycle of named,
// timed phases. Patterns come from a fixed catalog or from user-authored
// custom patterns stored in patterns.yaml.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPattern is returned when a pattern breaks its invariants.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrUnknownPattern is returned when a key matches no catalog or custom pattern.
	ErrUnknownPattern = errors.New("unknown pattern")
)

// Phase names used by catalog and custom patterns.
const (
	Inhale = "inspire"
	Hold   = "segure"
	Exhale = "expire"
	Rest   = "descanse"
)

// Phase is one timed segment of a breathing cycle. A zero-second phase is
// skipped.
type Phase struct {
	Name    string `json:"name"`
	Seconds int    `json:"seconds"`
}

// Pattern is an ordered sequence of phases, repeated for the whole session.
type Pattern struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Phases []Phase `json:"phases"`
	Custom bool    `json:"custom,omitempty"`
}

// Validate checks that the pattern has at least one phase, no negative
// durations and a positive cycle length.
func (p Pattern) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalidPattern)
	}
	for i, ph := range p.Phases {
		if ph.Seconds < 0 {
			return fmt.Errorf("%w: phase %d (%s) has negative duration %d", ErrInvalidPattern, i, ph.Name, ph.Seconds)
		}
	}
	if p.CycleSeconds() <= 0 {
		return fmt.Errorf("%w: cycle length must be positive", ErrInvalidPattern)
	}
	return nil
}

// CycleSeconds is the length of one full pass over every phase.
func (p Pattern) CycleSeconds() int {
	total := 0
	for _, ph := range p.Phases {
		total += ph.Seconds
	}
	return total
}

// Clone returns a deep copy so a running session cannot see later edits.
func (p Pattern) Clone() Pattern {
	c := p
	c.Phases = append([]Phase(nil), p.Phases...)
	return c
}

// Durations renders the phase lengths as "4-7-8".
func (p Pattern) Durations() string {
	parts := make([]string, len(p.Phases))
	for i, ph := range p.Phases {
		parts[i] = fmt.Sprint(ph.Seconds)
	}
	return strings.Join(parts, "-")
}

// Label returns the display name of a phase.
func Label(name string) string {
	switch name {
	case Inhale:
		return "Inspire"
	case Hold:
		return "Segure"
	case Exhale:
		return "Expire"
	case Rest:
		return "Descanse"
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func triple(key, label string, in, hold, out int) Pattern {
	return Pattern{
		Key:   key,
		Label: label,
		Phases: []Phase{
			{Name: Inhale, Seconds: in},
			{Name: Hold, Seconds: hold},
			{Name: Exhale, Seconds: out},
		},
	}
}

// Catalog returns the built-in patterns, in display order.
func Catalog() []Pattern {
	return []Pattern{
		triple("box", "Box 4-4-4", 4, 4, 4),
		triple("4-7-8", "4-7-8", 4, 7, 8),
		triple("coerencia", "Coerência 5-5-5", 5, 5, 5),
	}
}

// DefaultKey is the pattern used when none is configured.
const DefaultKey = "box"

// Lookup resolves key against the catalog first, then custom patterns.
// The returned pattern is a copy.
func Lookup(key string, custom []Pattern) (Pattern, error) {
	for _, p := range Catalog() {
		if p.Key == key {
			return p, nil
		}
	}
	for _, p := range custom {
		if p.Key == key {
			return p.Clone(), nil
		}
	}
	return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, key)
}

// FromCustom builds a pattern from user-authored inhale/hold/exhale/rest
// seconds. A zero rest drops the rest phase.
func FromCustom(name string, inhale, hold, exhale, rest int) (Pattern, error) {
	key := Slug(name)
	if key == "" {
		return Pattern{}, fmt.Errorf("%w: name is required", ErrInvalidPattern)
	}
	p := triple(key, name, inhale, hold, exhale)
	if rest != 0 {
		p.Phases = append(p.Phases, Phase{Name: Rest, Seconds: rest})
	}
	p.Custom = true
	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// Slug lowercases name and joins words with dashes.
func Slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		default:
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
