// Package tui provides the Bubble Tea view of a running session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/respira/internal/ambient"
	"github.com/fakeyudi/respira/internal/external"
	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/session"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Padding(1, 4)

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	cueStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 4)

	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// volumeStep is the change applied by one +/- key press.
const volumeStep = 0.05

// ── Keys ────────────

type keyMap struct {
	Pause  key.Binding
	Stop   key.Binding
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Louder key.Binding
	Softer key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Stop, k.Toggle, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Stop, k.Quit},
		{k.Up, k.Down, k.Toggle, k.Louder, k.Softer},
		{k.Help},
	}
}

var keys = keyMap{
	Pause:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "pause/resume")),
	Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous sound")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next sound")),
	Toggle: key.NewBinding(key.WithKeys("enter", "a"), key.WithHelp("enter", "toggle sound")),
	Louder: key.NewBinding(key.WithKeys("+", "=", "right", "l"), key.WithHelp("+", "louder")),
	Softer: key.NewBinding(key.WithKeys("-", "left", "h"), key.WithHelp("-", "softer")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// ── Model ────────────────────

// Controller is the part of the session controller the view drives.
type Controller interface {
	Subscribe() (<-chan session.Update, func())
	Snapshot() session.Snapshot
	Pause() error
	Resume() error
	Stop() (session.Result, error)
	ToggleAmbient(key string) (bool, error)
	SetAmbientVolume(key string, level float64) error
}

type updateMsg session.Update

// Model is the root Bubble Tea model for a session.
type Model struct {
	ctl      Controller
	updates  <-chan session.Update
	cancel   func()
	snap     session.Snapshot
	result   *session.Result
	bar      progress.Model
	help     help.Model
	cursor   int
	width    int
	err      error
	quitting bool
}

// New creates a model subscribed to ctl. Subscribe before starting the
// session so no update is missed.
func New(ctl Controller) Model {
	updates, cancel := ctl.Subscribe()
	return Model{
		ctl:     ctl,
		updates: updates,
		cancel:  cancel,
		snap:    ctl.Snapshot(),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		width:   80,
	}
}

// Result is the finished session, if any.
func (m Model) Result() *session.Result { return m.result }

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return m.wait() }

func (m Model) wait() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.snap = m.ctl.Snapshot()
		if msg.Result != nil {
			m.result = msg.Result
		}
		return m, m.wait()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width-8)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		m.err = nil
		switch {
		case key.Matches(msg, keys.Quit):
			if m.running() {
				m.stop()
			}
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, keys.Pause):
			switch m.snap.Run.State {
			case phase.Running:
				m.err = m.ctl.Pause()
			case phase.Paused:
				m.err = m.ctl.Resume()
			}
		case key.Matches(msg, keys.Stop):
			if m.running() {
				m.stop()
			}
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.snap.Ambient)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Toggle):
			if ch, ok := m.selected(); ok {
				_, m.err = m.ctl.ToggleAmbient(ch.Key)
			}
		case key.Matches(msg, keys.Louder):
			m.nudge(volumeStep)
		case key.Matches(msg, keys.Softer):
			m.nudge(-volumeStep)
		}
		m.snap = m.ctl.Snapshot()
		return m, nil
	}
	return m, nil
}

func (m *Model) stop() {
	res, err := m.ctl.Stop()
	if err != nil {
		m.err = err
		return
	}
	m.result = &res
}

func (m *Model) nudge(delta float64) {
	ch, ok := m.selected()
	if !ok {
		return
	}
	level := math.Round((ch.Volume+delta)*100) / 100
	m.err = m.ctl.SetAmbientVolume(ch.Key, level)
}

func (m Model) selected() (ambient.Channel, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Ambient) {
		return ambient.Channel{}, false
	}
	return m.snap.Ambient[m.cursor], true
}

func (m Model) running() bool {
	s := m.snap.Run.State
	return s == phase.Running || s == phase.Paused
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder

	title := "  respira"
	if m.snap.Run.Label != "" {
		title += "  " + m.snap.Run.Label
	}
	sb.WriteString(titleStyle.Width(m.width).Render(title) + "\n")

	if m.result != nil && !m.running() {
		sb.WriteString(m.renderResult())
	} else {
		sb.WriteString(m.renderRun())
	}

	sb.WriteString(m.renderAmbient())
	sb.WriteString(m.renderAudio())

	if m.err != nil {
		sb.WriteString("\n  " + errorStyle.Render(describe(m.err)) + "\n")
	}
	sb.WriteString("\n" + statusBarStyle.Width(m.width).Render(m.help.View(keys)))
	return sb.String()
}

func (m Model) renderRun() string {
	run := m.snap.Run
	var sb strings.Builder

	switch run.Modality {
	case phase.Breathing:
		name := pattern.Label(run.Phase)
		if name == "" {
			name = "…"
		}
		sb.WriteString(phaseStyle.Render(fmt.Sprintf("%s  %d", name, run.PhaseRemaining)) + "\n")
	case phase.Meditation:
		sb.WriteString("\n" + cueStyle.Render(pattern.CueAt(run.Elapsed)) + "\n\n")
	default:
		sb.WriteString("\n" + dimStyle.Render("  waiting for a session") + "\n\n")
	}

	if run.Remaining >= 0 && run.Total > 0 {
		pct := float64(run.Elapsed) / float64(run.Total)
		sb.WriteString("  " + m.bar.ViewAs(pct) + "\n")
		sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Tempo restante:"), clockFormat(run.Remaining)))
	} else {
		sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Tempo:"), clockFormat(run.Elapsed)))
	}
	if run.State == phase.Paused {
		sb.WriteString("  " + dimStyle.Render("pausado") + "\n")
	}
	if m.snap.Reconciled {
		sb.WriteString("  " + dimStyle.Render("duração ajustada ao áudio") + "\n")
	}
	return sb.String()
}

func (m Model) renderResult() string {
	r := m.result
	var sb strings.Builder
	head := "Sessão encerrada"
	if r.Completed {
		head = "Sessão concluída"
	}
	sb.WriteString("\n" + sectionHeader.Render("  "+head) + "\n\n")
	if r.Completed && r.Modality == phase.Meditation {
		sb.WriteString(cueStyle.Render(pattern.ClosingCue) + "\n\n")
	}
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Duração:", ledger.FormatTotal(r.Elapsed))
	row("Sequência:", fmt.Sprintf("%d", r.Stats.Streak))
	row("Tempo total:", ledger.FormatTotal(r.Stats.TotalSeconds))
	return sb.String()
}

func (m Model) renderAmbient() string {
	if len(m.snap.Ambient) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n" + sectionHeader.Render("  Sons ambientes") + "\n\n")
	for i, ch := range m.snap.Ambient {
		state := dimStyle.Render("off")
		if ch.Active {
			state = activeStyle.Render("on ")
		}
		filled := int(math.Round(ch.Volume * 10))
		meter := strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("░", 10-filled))
		row := fmt.Sprintf("  %s  %-14s %s %3.0f%%", state, ch.Label, meter, ch.Volume*100)
		if i == m.cursor {
			row = selectedRowStyle.Render(row)
		}
		sb.WriteString(row + "\n")
	}
	if m.snap.Audio != nil {
		sb.WriteString("  " + dimStyle.Render("sons ambientes pausados durante o áudio externo") + "\n")
	}
	return sb.String()
}

func (m Model) renderAudio() string {
	st := m.snap.Audio
	if st == nil {
		return ""
	}
	line := fmt.Sprintf("  %s %s (%s)", labelStyle.Render("Áudio:"), st.Kind, st.State)
	if st.Duration > 0 {
		line += " " + clockFormat(int(st.Duration.Seconds()))
	}
	if st.State == external.StateError && st.Error != "" {
		line += "  " + errorStyle.Render(st.Error)
	}
	return "\n" + line + "\n"
}

func describe(err error) string {
	switch {
	case errors.Is(err, ambient.ErrExternalAudioActive):
		return "desative o áudio externo para usar sons ambientes"
	case errors.Is(err, session.ErrNoSession):
		return "nenhuma sessão ativa"
	}
	return err.Error()
}

func clockFormat(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Run shows m and blocks until the user quits or ctx is done. It returns
// the finished session, or nil when none finished.
func Run(ctx context.Context, m Model) (*session.Result, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	if fm, ok := final.(Model); ok {
		return fm.Result(), nil
	}
	return nil, nil
}
