package ledger

import "fmt"

// Achievement is one unlockable badge.
type Achievement struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Unlocked bool   `json:"unlocked"`
}

// Achievements evaluates every badge against s.
func Achievements(s Stats) []Achievement {
	return []Achievement{
		{Key: "first", Label: "Primeira sessão", Unlocked: s.TotalSeconds > 0},
		{Key: "7days", Label: "7 dias seguidos", Unlocked: s.Streak >= 7},
		{Key: "30min", Label: "30 min totais", Unlocked: s.TotalSeconds >= 30*60},
		{Key: "2h", Label: "2 horas totais", Unlocked: s.TotalSeconds >= 2*3600},
	}
}

// FormatTotal renders seconds as "1h 5m", "5m 3s" or "3s".
func FormatTotal(seconds int) string {
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
