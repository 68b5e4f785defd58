package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/session"
)

var meditateFlags sessionFlags

var meditateCmd = &cobra.Command{
	Use:   "meditate [foco|relax|sono]",
	Short: "Start a timed meditation",
	Long: `Start a timed meditation.

Catalog lengths are foco 3 min, relax 5 min and sono 4 min. --minutes or
meditation_minutes overrides the length. When external audio is configured
for meditation, the session follows the audio's duration once it is known.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := meditationRequest(args, meditateFlags.minutes)
		if err != nil {
			return err
		}
		return runSession(cmd, req, &meditateFlags)
	},
}

// meditationRequest resolves the catalog entry and length for a meditation.
func meditationRequest(args []string, minutes int) (session.Request, error) {
	key := pattern.DefaultMeditation
	if len(args) == 1 {
		key = args[0]
	}
	m, err := pattern.LookupMeditation(key)
	if err != nil {
		return session.Request{}, err
	}
	if minutes < 0 {
		return session.Request{}, fmt.Errorf("--minutes cannot be negative")
	}
	if minutes == 0 {
		minutes = GetConfig().MeditationMinutes
	}
	seconds := m.Seconds()
	if minutes > 0 {
		seconds = minutes * 60
	}
	return session.Request{
		Modality: phase.Meditation,
		Label:    m.Key,
		Seconds:  seconds,
	}, nil
}

func init() {
	meditateFlags.register(meditateCmd)
	rootCmd.AddCommand(meditateCmd)
}
