package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/clock"
	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/report"
)

var (
	statsFormat string
	statsWatch  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your streak, total time and achievements",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer, err := report.ForFormat(statsFormat)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		led := ledger.New(st, clock.System{}, GetLogger())

		render := func() error {
			r := report.New(led.Load(cmd.Context()), GetProfile().Name, time.Now())
			out, err := renderer.Render(r)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		if err := render(); err != nil {
			return err
		}
		if !statsWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchStats(ctx, GetConfig().DataDir, cmd.OutOrStdout(), render)
	},
}

// watchStats calls render whenever the store files in dir change, until
// ctx is done.
func watchStats(ctx context.Context, dir string, w io.Writer, render func() error) error {
	lg := GetLogger()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// The file store replaces state.json by rename, so watch the directory.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isStoreFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fmt.Fprintln(w, "\n───")
				if err := render(); err != nil {
					lg.Warn("stats refresh failed", "err", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			lg.Debug("stats watcher", "err", err)
		}
	}
}

func isStoreFile(path string) bool {
	base := filepath.Base(path)
	return base == "state.json" || strings.HasPrefix(base, "respira.db")
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "text", "output format (text, markdown, json)")
	statsCmd.Flags().BoolVar(&statsWatch, "watch", false, "re-render whenever the stats change")
	rootCmd.AddCommand(statsCmd)
}
