// Package phase is the session state machine. It advances one second per
// Tick through a breathing pattern's phases, or through a flat meditation
// countdown, and reports what happened as events. It is not safe for
// concurrent use; the session controller serializes access.
package phase

import (
	"errors"
	"fmt"
	"time"

	"github.com/fakeyudi/respira/internal/pattern"
)

var (
	// ErrActive is returned by Start while a run is running or paused.
	ErrActive = errors.New("a session is already active")
	// ErrInvalidRun is returned for a Spec that cannot be run.
	ErrInvalidRun = errors.New("invalid session")
)

// Modality is the kind of session.
type Modality string

const (
	Breathing  Modality = "breathing"
	Meditation Modality = "meditation"
)

// ParseModality accepts "breathing" or "meditation".
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case Breathing, Meditation:
		return Modality(s), nil
	}
	return "", fmt.Errorf("unknown session type %q (want breathing or meditation)", s)
}

// State is the run state.
type State string

const (
	Idle      State = "idle"
	Running   State = "running"
	Paused    State = "paused"
	Completed State = "completed"
)

// EventKind identifies an Event.
type EventKind int

const (
	EventTick EventKind = iota
	EventPhaseChanged
	EventCompleted
	EventRetargeted
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventPhaseChanged:
		return "phase"
	case EventCompleted:
		return "completed"
	case EventRetargeted:
		return "retargeted"
	}
	return "unknown"
}

// Event reports one transition.
type Event struct {
	Kind     EventKind
	Modality Modality
	Phase    string // breathing only
	Elapsed  int
	Total    int // 0 when open-ended
}

// Spec describes a run to start.
type Spec struct {
	ID       string
	Modality Modality
	Label    string          // pattern or meditation key
	Pattern  pattern.Pattern // breathing only
	Total    int             // seconds, 0 = until stopped (breathing only)
	Started  time.Time
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	ID             string    `json:"id,omitempty"`
	Modality       Modality  `json:"modality,omitempty"`
	Label          string    `json:"label,omitempty"`
	State          State     `json:"state"`
	Started        time.Time `json:"started,omitzero"`
	Elapsed        int       `json:"elapsed"`
	Total          int       `json:"total"`
	Remaining      int       `json:"remaining"` // -1 when open-ended
	PhaseIndex     int       `json:"phase_index"`
	Phase          string    `json:"phase,omitempty"`
	PhaseRemaining int       `json:"phase_remaining"`
}

// Machine holds at most one run.
type Machine struct {
	state State
	spec  Spec

	elapsed        int
	phaseIndex     int
	phaseRemaining int
}

// New returns an idle Machine.
func New() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Start begins a run. A completed run is replaced.
func (m *Machine) Start(s Spec) error {
	if m.state == Running || m.state == Paused {
		return ErrActive
	}
	if s.Total < 0 {
		return fmt.Errorf("%w: negative total %d", ErrInvalidRun, s.Total)
	}
	switch s.Modality {
	case Breathing:
		if err := s.Pattern.Validate(); err != nil {
			return err
		}
		s.Pattern = s.Pattern.Clone()
	case Meditation:
		if s.Total == 0 {
			return fmt.Errorf("%w: meditation needs a duration", ErrInvalidRun)
		}
		s.Pattern = pattern.Pattern{}
	default:
		return fmt.Errorf("%w: modality %q", ErrInvalidRun, s.Modality)
	}

	m.spec = s
	m.state = Running
	m.elapsed = 0
	m.phaseIndex = -1
	m.phaseRemaining = 0
	if s.Modality == Breathing {
		m.phaseIndex = m.nextPhase(-1)
		m.phaseRemaining = s.Pattern.Phases[m.phaseIndex].Seconds
	}
	return nil
}

// nextPhase returns the index of the first phase after i with a positive
// duration, wrapping. Validate guarantees one exists.
func (m *Machine) nextPhase(i int) int {
	phases := m.spec.Pattern.Phases
	for range phases {
		i = (i + 1) % len(phases)
		if phases[i].Seconds > 0 {
			return i
		}
	}
	return 0
}

// Tick advances a running machine by one second and returns the resulting
// events. Ticks outside Running are ignored.
func (m *Machine) Tick() []Event {
	if m.state != Running {
		return nil
	}
	m.elapsed++
	if m.spec.Total > 0 && m.elapsed >= m.spec.Total {
		m.state = Completed
		return []Event{m.event(EventCompleted)}
	}
	events := []Event{m.event(EventTick)}
	if m.spec.Modality == Breathing {
		m.phaseRemaining--
		if m.phaseRemaining <= 0 {
			m.phaseIndex = m.nextPhase(m.phaseIndex)
			m.phaseRemaining = m.spec.Pattern.Phases[m.phaseIndex].Seconds
			events = append(events, m.event(EventPhaseChanged))
		}
	}
	return events
}

// Pause freezes a running machine.
func (m *Machine) Pause() bool {
	if m.state != Running {
		return false
	}
	m.state = Paused
	return true
}

// Resume restarts a paused machine.
func (m *Machine) Resume() bool {
	if m.state != Paused {
		return false
	}
	m.state = Running
	return true
}

// Stop ends a running or paused run and returns the seconds it lasted.
func (m *Machine) Stop() (int, bool) {
	if m.state != Running && m.state != Paused {
		return 0, false
	}
	m.state = Idle
	return m.elapsed, true
}

// Retarget replaces the total of a running, finite run. When the new total
// is already reached the run completes.
func (m *Machine) Retarget(total int) ([]Event, bool) {
	if m.state != Running || m.spec.Total == 0 || total <= 0 {
		return nil, false
	}
	m.spec.Total = total
	events := []Event{m.event(EventRetargeted)}
	if m.elapsed >= total {
		m.state = Completed
		events = append(events, m.event(EventCompleted))
	}
	return events, true
}

// Reset drops any run and returns to Idle.
func (m *Machine) Reset() {
	*m = Machine{state: Idle}
}

// Spec returns the spec of the current or last run.
func (m *Machine) Spec() Spec { return m.spec }

func (m *Machine) event(kind EventKind) Event {
	e := Event{Kind: kind, Modality: m.spec.Modality, Elapsed: m.elapsed, Total: m.spec.Total}
	if m.spec.Modality == Breathing && m.phaseIndex >= 0 {
		e.Phase = m.spec.Pattern.Phases[m.phaseIndex].Name
	}
	return e
}

// Snapshot returns the current view.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		ID:             m.spec.ID,
		Modality:       m.spec.Modality,
		Label:          m.spec.Label,
		State:          m.state,
		Started:        m.spec.Started,
		Elapsed:        m.elapsed,
		Total:          m.spec.Total,
		Remaining:      -1,
		PhaseIndex:     m.phaseIndex,
		PhaseRemaining: m.phaseRemaining,
	}
	if m.spec.Total > 0 {
		s.Remaining = max(m.spec.Total-m.elapsed, 0)
	}
	if m.spec.Modality == Breathing && m.phaseIndex >= 0 {
		s.Phase = m.spec.Pattern.Phases[m.phaseIndex].Name
	}
	if m.state == Idle && m.spec.Modality == "" {
		s.PhaseIndex = -1
	}
	return s
}
