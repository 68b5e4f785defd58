package pattern

import "fmt"

// Cue is a spoken-style prompt shown At seconds into a meditation.
type Cue struct {
	At   int    `json:"at"`
	Text string `json:"text"`
}

// Meditation is a catalog entry for a timed, phase-less session.
type Meditation struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
}

// Seconds is the catalog length.
func (m Meditation) Seconds() int { return m.Minutes * 60 }

// Meditations returns the built-in meditations, in display order.
func Meditations() []Meditation {
	return []Meditation{
		{Key: "foco", Label: "Foco", Minutes: 3},
		{Key: "relax", Label: "Relaxamento", Minutes: 5},
		{Key: "sono", Label: "Sono", Minutes: 4},
	}
}

// DefaultMeditation is the meditation used when none is named.
const DefaultMeditation = "foco"

// LookupMeditation resolves key against the meditation catalog.
func LookupMeditation(key string) (Meditation, error) {
	for _, m := range Meditations() {
		if m.Key == key {
			return m, nil
		}
	}
	return Meditation{}, fmt.Errorf("%w: meditation %q", ErrUnknownPattern, key)
}

var script = []Cue{
	{At: 0, Text: "Encontre uma postura confortável. Vamos começar sua meditação."},
	{At: 2, Text: "Inspire pelo nariz... solte devagar pela boca."},
	{At: 10, Text: "Observe o ar entrando e saindo. Se pensamentos surgirem, apenas deixe passar."},
}

// ClosingCue is shown when a meditation completes.
const ClosingCue = "Encerrando. Leve essa calma com você."

// CueAt returns the latest cue due at elapsed seconds.
func CueAt(elapsed int) string {
	text := ""
	for _, c := range script {
		if elapsed >= c.At {
			text = c.Text
		}
	}
	return text
}
