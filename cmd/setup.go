package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/profile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure respira (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works before profile exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, false)
	},
}

// runSetup runs the interactive setup wizard.
// If firstRun is true, a welcome message is shown.
func runSetup(cmd *cobra.Command, firstRun bool) error {
	out := cmd.OutOrStdout()
	if firstRun {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Welcome to respira! Let's get you set up.")
	}

	// Load existing profile as defaults if present.
	var existing *profile.Profile
	if profile.Exists() {
		p, err := profile.Load()
		if err == nil {
			existing = p
		}
	}

	prof, err := profile.RunSetup(cmd.InOrStdin(), out, existing, knownPattern)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if err := profile.Save(prof); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	fmt.Fprintln(out, "  ✓ Profile saved.")
	fmt.Fprintln(out, "  Setup complete. Run 'respira breathe' or 'respira meditate' to begin.")
	fmt.Fprintln(out)
	return nil
}

// knownPattern reports whether key names a catalog or custom pattern.
func knownPattern(key string) bool {
	custom, _ := customPatterns()
	_, err := pattern.Lookup(key, custom)
	return err == nil
}

// customPatterns lists the user's custom patterns.
func customPatterns() ([]pattern.Pattern, error) {
	repo, err := patternRepo()
	if err != nil {
		return nil, err
	}
	return repo.List()
}

func patternRepo() (*pattern.FileRepository, error) {
	path, err := pattern.DefaultPath()
	if err != nil {
		return nil, err
	}
	return pattern.NewFileRepository(path), nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
