package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/session"
)

var breatheFlags sessionFlags

var breatheCmd = &cobra.Command{
	Use:   "breathe [pattern]",
	Short: "Start a guided breathing session",
	Long: `Start a guided breathing session.

The pattern is a catalog key (box, 4-7-8, coerencia) or a custom pattern
added with 'respira patterns add'. Without --minutes the session runs
until stopped, unless breathing_minutes is configured.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := breathingRequest(args, breatheFlags.minutes)
		if err != nil {
			return err
		}
		return runSession(cmd, req, &breatheFlags)
	},
}

// breathingRequest resolves the pattern and length for a breathing session.
func breathingRequest(args []string, minutes int) (session.Request, error) {
	cfg := GetConfig()
	key := cfg.DefaultPattern
	if len(args) == 1 {
		key = args[0]
	}
	if key == "" {
		key = pattern.DefaultKey
	}

	custom, err := customPatterns()
	if err != nil {
		GetLogger().Warn("custom patterns unavailable", "err", err)
	}
	p, err := pattern.Lookup(key, custom)
	if err != nil {
		return session.Request{}, fmt.Errorf("%w (see 'respira patterns list')", err)
	}

	if minutes < 0 {
		return session.Request{}, fmt.Errorf("--minutes cannot be negative")
	}
	if minutes == 0 {
		minutes = cfg.BreathingMinutes
	}
	return session.Request{
		Modality: phase.Breathing,
		Label:    p.Key,
		Pattern:  p,
		Seconds:  minutes * 60,
	}, nil
}

func init() {
	breatheFlags.register(breatheCmd)
	rootCmd.AddCommand(breatheCmd)
}
