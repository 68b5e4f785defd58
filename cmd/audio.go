package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/external"
	"github.com/fakeyudi/respira/internal/phase"
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Configure external audio per session type",
	Long: `Configure external audio per session type.

While external audio plays, ambient sounds are stopped. A meditation with
external audio follows the audio's duration once it is known.`,
}

var audioFlags struct {
	kind   string
	source string
	volume float64
}

var audioSetCmd = &cobra.Command{
	Use:   "set <breathing|meditation>",
	Short: "Play a file, URL or stream during sessions of this type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := phase.ParseModality(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		c := external.Config{Kind: external.Kind(audioFlags.kind), Source: audioFlags.source, Volume: audioFlags.volume}
		if err := external.SaveConfig(cmd.Context(), st, string(m), c); err != nil {
			return fmt.Errorf("saving audio for %s: %w", m, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s sessions will play %s (%s, volume %.0f%%).\n", m, c.Source, c.Kind, c.Volume*100)
		return nil
	},
}

var audioShowCmd = &cobra.Command{
	Use:   "show [breathing|meditation]",
	Short: "Show the configured external audio",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types := []phase.Modality{phase.Breathing, phase.Meditation}
		if len(args) == 1 {
			m, err := phase.ParseModality(args[0])
			if err != nil {
				return err
			}
			types = []phase.Modality{m}
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tKIND\tSOURCE\tVOLUME")
		for _, m := range types {
			c := external.LoadConfig(cmd.Context(), st, string(m), GetLogger())
			if !c.Enabled() {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\n", m, external.KindNone)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\n", m, c.Kind, c.Source, c.Volume*100)
		}
		return tw.Flush()
	},
}

var audioClearCmd = &cobra.Command{
	Use:   "clear <breathing|meditation>",
	Short: "Stop using external audio for this session type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := phase.ParseModality(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := external.ClearConfig(cmd.Context(), st, string(m)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s sessions will use ambient sounds only.\n", m)
		return nil
	},
}

func init() {
	f := audioSetCmd.Flags()
	f.StringVar(&audioFlags.kind, "kind", string(external.KindFile), "file (decode locally) or player (external player process)")
	f.StringVar(&audioFlags.source, "source", "", "path or URL of the audio")
	f.Float64Var(&audioFlags.volume, "volume", 1, "volume between 0 and 1")
	_ = audioSetCmd.MarkFlagRequired("source")

	audioCmd.AddCommand(audioSetCmd, audioShowCmd, audioClearCmd)
	rootCmd.AddCommand(audioCmd)
}
