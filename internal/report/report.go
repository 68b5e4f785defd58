// Package report renders the stats ledger for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/respira/internal/ledger"
)

// Report is the complete, renderable view of the ledger.
type Report struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Name         string               `json:"name,omitempty"`
	Stats        ledger.Stats         `json:"stats"`
	Total        string               `json:"total"` // human-readable, e.g. "1h 5m"
	Sessions     int                  `json:"sessions"`
	Achievements []ledger.Achievement `json:"achievements"`
}

// New builds a Report from s.
func New(s ledger.Stats, name string, at time.Time) *Report {
	return &Report{
		GeneratedAt:  at,
		Name:         name,
		Stats:        s,
		Total:        ledger.FormatTotal(s.TotalSeconds),
		Sessions:     s.BreathingSessions + s.MeditationSessions,
		Achievements: ledger.Achievements(s),
	}
}

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// ForFormat returns the renderer for "json", "markdown" or "text".
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "text", "":
		return &TextRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text, markdown or json)", format)
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// MarkdownRenderer renders a Report as a Markdown document.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(r *Report) ([]byte, error) {
	var sb strings.Builder

	title := "Respira"
	if r.Name != "" {
		title += " · " + r.Name
	}
	fmt.Fprintf(&sb, "# %s, %s\n\n", title, r.GeneratedAt.Format("2006-01-02 15:04"))

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Streak: %d %s\n", r.Stats.Streak, days(r.Stats.Streak))
	fmt.Fprintf(&sb, "- Total time: %s\n", r.Total)
	fmt.Fprintf(&sb, "- Sessions: %d\n", r.Sessions)
	if r.Stats.LastDay != "" {
		fmt.Fprintf(&sb, "- Last active: %s\n", r.Stats.LastDay)
	}
	sb.WriteString("\n")

	sb.WriteString("## Sessions\n\n")
	sb.WriteString("| Type | Count |\n")
	sb.WriteString("|------|-------|\n")
	fmt.Fprintf(&sb, "| breathing | %d |\n", r.Stats.BreathingSessions)
	fmt.Fprintf(&sb, "| meditation | %d |\n", r.Stats.MeditationSessions)
	fmt.Fprintf(&sb, "| completed | %d |\n", r.Stats.SessionsCompleted)
	sb.WriteString("\n")

	sb.WriteString("## Achievements\n\n")
	for _, a := range r.Achievements {
		mark := " "
		if a.Unlocked {
			mark = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", mark, a.Label)
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

var (
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	badgeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// TextRenderer renders a Report for the terminal.
type TextRenderer struct{}

func (TextRenderer) Render(r *Report) ([]byte, error) {
	var sb strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&sb, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), valueStyle.Render(value))
	}

	sb.WriteString(headStyle.Render("Seu progresso") + "\n\n")
	row("Sequência", fmt.Sprintf("%d %s", r.Stats.Streak, days(r.Stats.Streak)))
	row("Tempo total", r.Total)
	row("Sessões", fmt.Sprintf("%d (respiração %d, meditação %d)", r.Sessions, r.Stats.BreathingSessions, r.Stats.MeditationSessions))
	sb.WriteString("\n")
	for _, a := range r.Achievements {
		if a.Unlocked {
			sb.WriteString("  " + badgeStyle.Render("★ "+a.Label) + "\n")
		} else {
			sb.WriteString("  " + lockedStyle.Render("☆ "+a.Label) + "\n")
		}
	}
	return []byte(sb.String()), nil
}

func days(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
