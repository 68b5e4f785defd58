package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/respira/internal/ambient"
	"github.com/fakeyudi/respira/internal/api"
	"github.com/fakeyudi/respira/internal/audio"
	"github.com/fakeyudi/respira/internal/clock"
	"github.com/fakeyudi/respira/internal/config"
	"github.com/fakeyudi/respira/internal/external"
	"github.com/fakeyudi/respira/internal/haptic"
	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/pattern"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/profile"
	"github.com/fakeyudi/respira/internal/progress"
	"github.com/fakeyudi/respira/internal/report"
	"github.com/fakeyudi/respira/internal/session"
	"github.com/fakeyudi/respira/internal/synth"
	"github.com/fakeyudi/respira/internal/tui"
)

// sessionFlags are shared by breathe and meditate.
type sessionFlags struct {
	minutes int
	plain   bool
	listen  string
	ambient []string
}

func (f *sessionFlags) register(c *cobra.Command) {
	c.Flags().IntVar(&f.minutes, "minutes", 0, "session length in minutes")
	c.Flags().BoolVar(&f.plain, "plain", false, "plain text output instead of TUI")
	c.Flags().StringVar(&f.listen, "listen", "", "serve the control API on this address (overrides config)")
	c.Flags().StringSliceVar(&f.ambient, "ambient", nil, "ambient sounds to start with (rain, wind, white)")
}

// runSession wires the audio graph, the ledger and the controller, runs
// req to completion or until interrupted, and prints the result.
func runSession(cmd *cobra.Command, req session.Request, flags *sessionFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	interactive := !flags.plain && term.IsTerminal(os.Stdout.Fd())
	lg := GetLogger()
	if interactive {
		// The alt screen owns the terminal; log to a file instead.
		f, fl, err := logging.OpenFile(cfg.DataDir, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		lg = fl
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	req.Audio = external.LoadConfig(ctx, st, string(req.Modality), lg)
	req.Vibrate = GetProfile().Vibrate

	sink := audio.Sink(audio.NewMix())
	if out, err := audio.Open(); err != nil {
		lg.Warn("no audio device, sounds are muted", "err", err)
	} else {
		defer out.Close()
		sink = out
	}

	seed := uint64(time.Now().UnixNano())
	noise := synth.New(sink, rand.New(rand.NewPCG(seed, seed>>1|1)))
	mixer := ambient.New(ambient.SynthFactory(noise, cfg.NoiseSeconds), cfg.AmbientVolumes, lg)
	engine := external.NewEngine(sink,
		external.MPVLauncher{Command: cfg.PlayerCommand},
		lg,
		external.WithProbeWindow(cfg.ProbeTimeout),
	)
	pulser := haptic.New(cfg.Haptic, cmd.ErrOrStderr(), sink, lg)
	if c, ok := pulser.(io.Closer); ok {
		defer c.Close()
	}
	led := ledger.New(st, clock.System{}, lg)

	ctl := session.New(session.Options{
		Mixer:  mixer,
		Audio:  engine,
		Ledger: led,
		Remote: remoteCommitter(cfg, GetProfile(), lg),
		Pulser: pulser,
		Log:    lg,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ctl.Close(closeCtx); err != nil {
			lg.Warn("session shutdown", "err", err)
		}
	}()

	for _, key := range flags.ambient {
		if _, err := ctl.ToggleAmbient(key); err != nil {
			return fmt.Errorf("ambient %q: %w", key, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	listen := cfg.Listen
	if flags.listen != "" {
		listen = flags.listen
	}
	if listen != "" {
		srv := api.NewServer(ctl, led, lg)
		g.Go(func() error { return srv.Run(gctx, listen) })
	}

	var res *session.Result
	g.Go(func() error {
		defer stop()
		var err error
		if interactive {
			res, err = runInteractive(gctx, ctl, req)
		} else {
			res, err = runPlain(gctx, cmd.OutOrStdout(), ctl, req)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	return nil
}

func runInteractive(ctx context.Context, ctl *session.Controller, req session.Request) (*session.Result, error) {
	m := tui.New(ctl)
	if _, err := ctl.Start(ctx, req); err != nil {
		return nil, err
	}
	return tui.Run(ctx, m)
}

// runPlain prints phase changes until the session ends or ctx is done.
func runPlain(ctx context.Context, w io.Writer, ctl *session.Controller, req session.Request) (*session.Result, error) {
	updates, cancel := ctl.Subscribe()
	defer cancel()

	snap, err := ctl.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	describeStart(w, snap)

	for {
		select {
		case <-ctx.Done():
			res, err := ctl.Stop()
			if errors.Is(err, session.ErrNoSession) {
				return nil, nil
			}
			return &res, err
		case u, ok := <-updates:
			if !ok {
				return nil, nil
			}
			switch u.Kind {
			case session.UpdatePhase:
				fmt.Fprintf(w, "  %-9s %ds\n", pattern.Label(u.Phase), u.Run.PhaseRemaining)
			case session.UpdateRetargeted:
				fmt.Fprintf(w, "  length follows audio: %s\n", clockText(u.Run.Total))
			case session.UpdateTick:
				if u.Run.Modality == phase.Meditation {
					if cue := pattern.CueAt(u.Run.Elapsed); cue != pattern.CueAt(u.Run.Elapsed-1) {
						fmt.Fprintf(w, "  %s\n", cue)
					}
				}
			case session.UpdateCompleted, session.UpdateStopped:
				if u.Result.Completed && u.Result.Modality == phase.Meditation {
					fmt.Fprintf(w, "  %s\n", pattern.ClosingCue)
				}
				return u.Result, nil
			}
		}
	}
}

func describeStart(w io.Writer, snap phase.Snapshot) {
	length := "until stopped"
	if snap.Total > 0 {
		length = clockText(snap.Total)
	}
	fmt.Fprintf(w, "%s session %q started (%s). Press Ctrl+C to stop.\n", snap.Modality, snap.Label, length)
	if snap.Modality == phase.Breathing {
		fmt.Fprintf(w, "  %-9s %ds\n", pattern.Label(snap.Phase), snap.PhaseRemaining)
	} else {
		fmt.Fprintf(w, "  %s\n", pattern.CueAt(0))
	}
}

func printResult(w io.Writer, res *session.Result) {
	verb := "stopped"
	if res.Completed {
		verb = "completed"
	}
	fmt.Fprintf(w, "\nSession %s after %s.\n\n", verb, ledger.FormatTotal(res.Elapsed))
	out, err := report.TextRenderer{}.Render(report.New(res.Stats, GetProfile().Name, time.Now()))
	if err == nil {
		w.Write(out)
	}
}

func remoteCommitter(cfg config.Config, prof *profile.Profile, lg *log.Logger) progress.Committer {
	if cfg.RemoteURL == "" || prof.RemoteToken == "" {
		return progress.Nop{}
	}
	c, err := progress.NewClient(cfg.RemoteURL, prof.UserID, prof.RemoteToken)
	if err != nil {
		lg.Warn("remote progress disabled", "err", err)
		return progress.Nop{}
	}
	return c
}

func clockText(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
