// Package profile manages the user's persistent respira profile.
// The profile is stored at ~/.config/respira/profile.json and is created
// once via the interactive setup flow, then referenced on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Profile holds user-level preferences set during first-run setup.
type Profile struct {
	Name           string `json:"name"`
	UserID         string `json:"user_id"`         // remote progress account, "" = "me"
	RemoteToken    string `json:"remote_token"`    // bearer token for remote progress
	Vibrate        bool   `json:"vibrate"`         // pulse on every phase change
	DefaultPattern string `json:"default_pattern"` // overrides config when set
}

// Default is the profile used before setup has run.
func Default() *Profile {
	return &Profile{Vibrate: true}
}

// profilePath returns the path to the profile file.
func profilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// ConfigDir returns the respira config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "respira"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'respira setup' to configure: %w", err)
	}
	prof := Default()
	if err := json.Unmarshal(data, prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
// The file holds a token, so it is private to the user.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// RunSetup runs the interactive setup wizard on in/out and returns the
// resulting profile. If existing is non-nil, it is used as the default for
// each prompt (edit mode). validPattern reports whether a pattern key exists.
func RunSetup(in io.Reader, out io.Writer, existing *Profile, validPattern func(string) bool) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes" || ans == "s" || ans == "sim", nil
	}

	prof := Default()
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │   respira, first-time setup     │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	prof.Name, err = ask("  Your name", prof.Name)
	if err != nil {
		return nil, err
	}

	for {
		key, err := ask("  Default breathing pattern (box/4-7-8/coerencia or a custom key)", prof.DefaultPattern)
		if err != nil {
			return nil, err
		}
		if key == "" || validPattern == nil || validPattern(key) {
			prof.DefaultPattern = key
			break
		}
		fmt.Fprintf(out, "  unknown pattern %q\n", key)
	}

	prof.Vibrate, err = askBool("  Pulse on every phase change", prof.Vibrate)
	if err != nil {
		return nil, err
	}

	prof.UserID, err = ask("  Remote progress user id (empty for the token owner)", prof.UserID)
	if err != nil {
		return nil, err
	}

	prof.RemoteToken, err = ask("  Remote progress token (empty to disable)", prof.RemoteToken)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return prof, nil
}
