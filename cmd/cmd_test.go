package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/respira/internal/clock"
	"github.com/fakeyudi/respira/internal/config"
	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/profile"
	"github.com/fakeyudi/respira/internal/report"
	"github.com/fakeyudi/respira/internal/store"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolate points HOME and XDG_DATA_HOME at temp dirs and saves a profile so
// the first-run wizard never triggers.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	data := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", data)
	if err := profile.Save(&profile.Profile{Name: "Ana", Vibrate: true}); err != nil {
		t.Fatalf("Save profile: %v", err)
	}
	return filepath.Join(data, "respira")
}

func TestPatternsAddListRemove(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "patterns", "add", "Evening Calm", "--inhale", "4", "--hold", "0", "--exhale", "6", "--rest", "2")
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"evening-calm" (4-0-6-2)`) {
		t.Errorf("add output: %q", out)
	}

	out, err = executeCommand(rootCmd, "patterns", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"box", "4-7-8", "coerencia", "evening-calm", "custom"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if _, err := executeCommand(rootCmd, "patterns", "remove", "evening-calm"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, _ = executeCommand(rootCmd, "patterns", "list")
	if strings.Contains(out, "evening-calm") {
		t.Errorf("pattern still listed after remove:\n%s", out)
	}
	if _, err := executeCommand(rootCmd, "patterns", "remove", "evening-calm"); err == nil {
		t.Error("expected error removing an unknown pattern")
	}
}

func TestPatternsListMarksConfiguredDefault(t *testing.T) {
	isolate(t)
	dir, err := config.GlobalDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("default_pattern: coerencia\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "patterns", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "coerencia *") || strings.Contains(out, "box *") {
		t.Errorf("default marker not taken from config:\n%s", out)
	}
	if got := GetConfig().DefaultPattern; got != "coerencia" {
		t.Errorf("GetConfig().DefaultPattern = %q", got)
	}
}

func TestPatternsAddRejectsCatalogKey(t *testing.T) {
	isolate(t)
	if _, err := executeCommand(rootCmd, "patterns", "add", "Box", "--inhale", "4", "--hold", "4", "--exhale", "4", "--rest", "0"); err == nil {
		t.Fatal("expected error shadowing a catalog pattern")
	}
}

func TestAudioSetShowClear(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "audio", "set", "meditation", "--kind", "file", "--source", "/music/rain.mp3", "--volume", "0.5")
	if err != nil {
		t.Fatalf("set: %v\n%s", err, out)
	}

	out, err = executeCommand(rootCmd, "audio", "show", "meditation")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "/music/rain.mp3") || !strings.Contains(out, "50%") {
		t.Errorf("show output: %q", out)
	}

	if _, err := executeCommand(rootCmd, "audio", "clear", "meditation"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, _ = executeCommand(rootCmd, "audio", "show")
	if strings.Contains(out, "/music/rain.mp3") {
		t.Errorf("audio still configured after clear:\n%s", out)
	}
}

func TestAudioSetRejectsInvalid(t *testing.T) {
	isolate(t)
	cases := [][]string{
		{"audio", "set", "yoga", "--kind", "file", "--source", "a.mp3", "--volume", "1"},
		{"audio", "set", "breathing", "--kind", "radio", "--source", "a.mp3", "--volume", "1"},
		{"audio", "set", "breathing", "--kind", "file", "--source", "a.mp3", "--volume", "2"},
		{"audio", "set", "breathing", "--kind", "file", "--source", "ftp://host/a.mp3", "--volume", "1"},
	}
	for _, args := range cases {
		if _, err := executeCommand(rootCmd, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestStatsJSON(t *testing.T) {
	dataDir := isolate(t)

	st, err := store.Open("file", dataDir)
	if err != nil {
		t.Fatal(err)
	}
	led := ledger.New(st, clock.System{}, nil)
	if _, err := led.Commit(context.Background(), phase.Meditation, 180); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "stats", "--format", "json", "--watch=false")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if r.Stats.TotalSeconds != 180 || r.Stats.Streak != 1 || r.Total != "3m 0s" || r.Name != "Ana" {
		t.Fatalf("report: %+v", r)
	}
}

func TestStatsUnknownFormat(t *testing.T) {
	isolate(t)
	if _, err := executeCommand(rootCmd, "stats", "--format", "pdf"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	statsFormat = "text"
}

func TestMeditationRequest(t *testing.T) {
	cfg = config.Defaults()

	req, err := meditationRequest([]string{"relax"}, 0)
	if err != nil || req.Seconds != 300 || req.Modality != phase.Meditation {
		t.Fatalf("relax: %+v %v", req, err)
	}
	req, _ = meditationRequest(nil, 0)
	if req.Label != "foco" || req.Seconds != 180 {
		t.Fatalf("default: %+v", req)
	}
	req, _ = meditationRequest([]string{"sono"}, 2)
	if req.Seconds != 120 {
		t.Fatalf("--minutes override: %+v", req)
	}
	cfg.MeditationMinutes = 7
	req, _ = meditationRequest([]string{"sono"}, 0)
	if req.Seconds != 420 {
		t.Fatalf("config override: %+v", req)
	}
	if _, err := meditationRequest([]string{"zen"}, 0); err == nil {
		t.Fatal("expected error for unknown meditation")
	}
}

func TestBreathingRequest(t *testing.T) {
	isolate(t)
	cfg = config.Defaults()

	req, err := breathingRequest(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.Label != "box" || req.Seconds != 0 || len(req.Pattern.Phases) != 3 {
		t.Fatalf("default: %+v", req)
	}
	cfg.BreathingMinutes = 5
	req, _ = breathingRequest([]string{"4-7-8"}, 0)
	if req.Label != "4-7-8" || req.Seconds != 300 {
		t.Fatalf("configured length: %+v", req)
	}
	if _, err := breathingRequest([]string{"nope"}, 0); err == nil {
		t.Fatal("expected error for unknown pattern")
	}
	if _, err := breathingRequest(nil, -1); err == nil {
		t.Fatal("expected error for negative minutes")
	}
}

func TestWatchStatsRendersOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rendered := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchStats(ctx, dir, new(bytes.Buffer), func() error {
			rendered <- struct{}{}
			return nil
		})
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-rendered:
			break wait
		case <-tick.C:
			if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{}"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("watcher never rendered")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchStats: %v", err)
	}
}

func TestIsStoreFile(t *testing.T) {
	for path, want := range map[string]bool{
		"/d/state.json":     true,
		"/d/respira.db":     true,
		"/d/respira.db-wal": true,
		"/d/respira.log":    false,
		"/d/state.json.tmp": false,
	} {
		if got := isStoreFile(path); got != want {
			t.Errorf("%s: got %v, want %v", path, got, want)
		}
	}
}
