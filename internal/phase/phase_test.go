package phase

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/respira/internal/pattern"
)

func box() pattern.Pattern {
	p, _ := pattern.Lookup("box", nil)
	return p
}

func startBreathing(t interface{ Fatalf(string, ...any) }, p pattern.Pattern, total int) *Machine {
	m := New()
	if err := m.Start(Spec{Modality: Breathing, Label: p.Key, Pattern: p, Total: total, Started: time.Now()}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

func phaseChanges(events []Event) []string {
	var out []string
	for _, e := range events {
		if e.Kind == EventPhaseChanged {
			out = append(out, e.Phase)
		}
	}
	return out
}

func TestBoxPatternScenario(t *testing.T) {
	m := startBreathing(t, box(), 0)
	if got := m.Snapshot().Phase; got != pattern.Inhale {
		t.Fatalf("t0 phase: %s", got)
	}
	want := map[int]string{4: pattern.Hold, 8: pattern.Exhale, 12: pattern.Inhale}
	for sec := 1; sec <= 12; sec++ {
		changes := phaseChanges(m.Tick())
		if name, ok := want[sec]; ok {
			if len(changes) != 1 || changes[0] != name {
				t.Fatalf("t0+%ds: changes %v, want [%s]", sec, changes, name)
			}
		} else if len(changes) != 0 {
			t.Fatalf("t0+%ds: unexpected phase change %v", sec, changes)
		}
	}
	if m.Snapshot().Elapsed != 12 {
		t.Fatalf("elapsed: %d", m.Snapshot().Elapsed)
	}
}

// Feature: respira, Property 6: Phases are visited in declared order and wrap after the last
func TestPhasesVisitedInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "phases")
		p := pattern.Pattern{Key: "gen"}
		for i := range n {
			p.Phases = append(p.Phases, pattern.Phase{
				Name:    string(rune('a' + i)),
				Seconds: rapid.IntRange(0, 6).Draw(t, "seconds"),
			})
		}
		if p.CycleSeconds() == 0 {
			p.Phases[rapid.IntRange(0, n-1).Draw(t, "forced")].Seconds = 1
		}
		var order []string
		for _, ph := range p.Phases {
			if ph.Seconds > 0 {
				order = append(order, ph.Name)
			}
		}

		m := startBreathing(t, p, 0)
		cycles := rapid.IntRange(1, 4).Draw(t, "cycles")
		var changes []string
		for range cycles * p.CycleSeconds() {
			changes = append(changes, phaseChanges(m.Tick())...)
		}
		if len(changes) != cycles*len(order) {
			t.Fatalf("got %d phase changes, want %d", len(changes), cycles*len(order))
		}
		for i, name := range changes {
			if want := order[(i+1)%len(order)]; name != want {
				t.Fatalf("change %d: %s, want %s (order %v)", i, name, want, order)
			}
		}
		if m.Snapshot().Phase != order[0] {
			t.Fatalf("after whole cycles phase is %s, want %s", m.Snapshot().Phase, order[0])
		}
	})
}

// Feature: respira, Property 7: Stop at elapsed N reports exactly N
func TestStopReportsElapsed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 600).Draw(t, "total")
		n := rapid.IntRange(0, total-1).Draw(t, "n")
		m := New()
		if err := m.Start(Spec{Modality: Meditation, Total: total}); err != nil {
			t.Fatal(err)
		}
		pauseAt := rapid.IntRange(0, n).Draw(t, "pauseAt")
		for i := range n {
			if i == pauseAt {
				m.Pause()
				m.Tick()
				m.Resume()
			}
			m.Tick()
		}
		got, ok := m.Stop()
		if !ok || got != n {
			t.Fatalf("Stop: got %d ok=%v, want %d", got, ok, n)
		}
		if m.State() != Idle {
			t.Fatalf("state after Stop: %s", m.State())
		}
	})
}

func TestMeditationCompletesWithoutPhaseChanges(t *testing.T) {
	m := New()
	if err := m.Start(Spec{Modality: Meditation, Label: "foco", Total: 180}); err != nil {
		t.Fatal(err)
	}
	var last []Event
	for range 180 {
		ev := m.Tick()
		if len(phaseChanges(ev)) != 0 {
			t.Fatal("meditation must not emit phase changes")
		}
		last = ev
	}
	if len(last) != 1 || last[0].Kind != EventCompleted || last[0].Elapsed != 180 {
		t.Fatalf("last events: %+v", last)
	}
	if m.State() != Completed {
		t.Fatalf("state: %s", m.State())
	}
	if m.Tick() != nil {
		t.Fatal("ticks after completion must be ignored")
	}
	if _, ok := m.Stop(); ok {
		t.Fatal("Stop after completion must be a no-op")
	}
}

func TestPausedIgnoresTicks(t *testing.T) {
	m := startBreathing(t, box(), 60)
	m.Tick()
	if !m.Pause() || m.Pause() {
		t.Fatal("Pause should succeed once")
	}
	for range 5 {
		if m.Tick() != nil {
			t.Fatal("tick while paused")
		}
	}
	if m.Snapshot().Elapsed != 1 {
		t.Fatalf("elapsed moved while paused: %d", m.Snapshot().Elapsed)
	}
	if !m.Resume() || m.Resume() {
		t.Fatal("Resume should succeed once")
	}
}

func TestRetarget(t *testing.T) {
	m := New()
	m.Start(Spec{Modality: Meditation, Total: 300})
	m.Tick()
	m.Tick()
	ev, ok := m.Retarget(180)
	if !ok || len(ev) != 1 || ev[0].Kind != EventRetargeted {
		t.Fatalf("Retarget: %+v %v", ev, ok)
	}
	if got := m.Snapshot().Remaining; got != 178 {
		t.Fatalf("remaining: %d, want 178", got)
	}

	m.Pause()
	if _, ok := m.Retarget(100); ok {
		t.Fatal("Retarget while paused must be refused")
	}
	m.Resume()

	ev, ok = m.Retarget(1)
	if !ok || ev[len(ev)-1].Kind != EventCompleted || m.State() != Completed {
		t.Fatalf("retarget below elapsed should complete: %+v", ev)
	}
}

func TestRetargetOpenEndedRefused(t *testing.T) {
	m := startBreathing(t, box(), 0)
	if _, ok := m.Retarget(60); ok {
		t.Fatal("open-ended runs have no total to replace")
	}
	if m.Snapshot().Remaining != -1 {
		t.Fatalf("open-ended remaining: %d", m.Snapshot().Remaining)
	}
}

func TestZeroPhasesSkipped(t *testing.T) {
	p := pattern.Pattern{Key: "z", Phases: []pattern.Phase{
		{Name: pattern.Inhale, Seconds: 0},
		{Name: pattern.Hold, Seconds: 2},
		{Name: pattern.Exhale, Seconds: 0},
	}}
	m := startBreathing(t, p, 0)
	if m.Snapshot().Phase != pattern.Hold {
		t.Fatalf("start phase: %s", m.Snapshot().Phase)
	}
	m.Tick()
	changes := phaseChanges(m.Tick())
	if len(changes) != 1 || changes[0] != pattern.Hold {
		t.Fatalf("single-phase wrap: %v", changes)
	}
}

func TestStartValidation(t *testing.T) {
	m := New()
	if err := m.Start(Spec{Modality: Meditation}); !errors.Is(err, ErrInvalidRun) {
		t.Fatalf("meditation without total: %v", err)
	}
	if err := m.Start(Spec{Modality: Breathing}); !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Fatalf("breathing without pattern: %v", err)
	}
	m.Start(Spec{Modality: Meditation, Total: 10})
	if err := m.Start(Spec{Modality: Meditation, Total: 10}); !errors.Is(err, ErrActive) {
		t.Fatalf("second start: %v", err)
	}
	if _, err := ParseModality("yoga"); err == nil {
		t.Fatal("expected error for unknown modality")
	}
}
