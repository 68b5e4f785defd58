package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/pattern"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List and manage breathing patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog and custom patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		custom, err := customPatterns()
		if err != nil {
			GetLogger().Warn("custom patterns unavailable", "err", err)
		}
		defaultKey := GetConfig().DefaultPattern
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tPHASES\tSOURCE")
		for _, p := range append(pattern.Catalog(), custom...) {
			src := "catalog"
			if p.Custom {
				src = "custom"
			}
			mark := ""
			if p.Key == defaultKey {
				mark = " *"
			}
			fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", p.Key, mark, p.Label, p.Durations(), src)
		}
		return tw.Flush()
	},
}

var addFlags struct {
	inhale, hold, exhale, rest int
}

var patternsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a custom pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := patternRepo()
		if err != nil {
			return err
		}
		p, err := repo.Add(args[0], addFlags.inhale, addFlags.hold, addFlags.exhale, addFlags.rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved pattern %q (%s). Start it with: respira breathe %s\n", p.Key, p.Durations(), p.Key)
		return nil
	},
}

var patternsRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a custom pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := patternRepo()
		if err != nil {
			return err
		}
		if err := repo.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed pattern %q.\n", args[0])
		return nil
	},
}

func init() {
	f := patternsAddCmd.Flags()
	f.IntVar(&addFlags.inhale, "inhale", 4, "inhale seconds")
	f.IntVar(&addFlags.hold, "hold", 4, "hold seconds (0 to skip)")
	f.IntVar(&addFlags.exhale, "exhale", 4, "exhale seconds")
	f.IntVar(&addFlags.rest, "rest", 0, "rest seconds after exhaling (0 to skip)")

	patternsCmd.AddCommand(patternsListCmd, patternsAddCmd, patternsRemoveCmd)
	rootCmd.AddCommand(patternsCmd)
}
