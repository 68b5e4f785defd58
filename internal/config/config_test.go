package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: respira, Property 12: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	// Generator for a non-empty string field value.
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)

	// Each field is independently either empty or a non-empty value.
	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasDefaultPattern") {
			cfg.DefaultPattern = nonEmptyString.Draw(t, "defaultPattern")
		}
		if rapid.Bool().Draw(t, "hasPlayerCommand") {
			cfg.PlayerCommand = nonEmptyString.Draw(t, "playerCommand")
		}
		if rapid.Bool().Draw(t, "hasRemoteURL") {
			cfg.RemoteURL = nonEmptyString.Draw(t, "remoteURL")
		}
		if rapid.Bool().Draw(t, "hasMeditationMinutes") {
			cfg.MeditationMinutes = rapid.IntRange(1, 60).Draw(t, "meditationMinutes")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkField(t, "DefaultPattern",
			global.DefaultPattern, project.DefaultPattern, defaults.DefaultPattern,
			merged.DefaultPattern)
		checkField(t, "PlayerCommand",
			global.PlayerCommand, project.PlayerCommand, defaults.PlayerCommand,
			merged.PlayerCommand)
		checkField(t, "RemoteURL",
			global.RemoteURL, project.RemoteURL, defaults.RemoteURL,
			merged.RemoteURL)
		checkField(t, "MeditationMinutes",
			global.MeditationMinutes, project.MeditationMinutes, defaults.MeditationMinutes,
			merged.MeditationMinutes)
	})
}

// checkField asserts the merge precedence rule for a single field:
//   - project set  → merged == project
//   - project unset, global set → merged == global
//   - both unset → merged == defaultVal
func checkField[T comparable](t *rapid.T, name string, globalVal, projectVal, defaultVal, mergedVal T) {
	t.Helper()
	var zero T
	switch {
	case projectVal != zero:
		if mergedVal != projectVal {
			t.Fatalf("%s: both set: expected project value %v, got %v", name, projectVal, mergedVal)
		}
	case globalVal != zero:
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set: expected global value %v, got %v", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set: expected default %v, got %v", name, defaultVal, mergedVal)
		}
	}
}

func TestMergeAmbientVolumesPerKey(t *testing.T) {
	global := &Config{AmbientVolumes: map[string]float64{"rain": 0.5, "wind": 0.4}}
	project := &Config{AmbientVolumes: map[string]float64{"rain": 0.1}}
	got := Merge(global, project).AmbientVolumes
	if got["rain"] != 0.1 || got["wind"] != 0.4 {
		t.Fatalf("volumes: %v", got)
	}
	if len(global.AmbientVolumes) != 2 || global.AmbientVolumes["rain"] != 0.5 {
		t.Fatal("Merge must not modify its inputs")
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.DefaultPattern != "box" {
		t.Errorf("DefaultPattern: want %q, got %q", "box", d.DefaultPattern)
	}
	if d.ProbeTimeout != 10*time.Second {
		t.Errorf("ProbeTimeout: want 10s, got %s", d.ProbeTimeout)
	}
	if d.NoiseSeconds != 3 {
		t.Errorf("NoiseSeconds: want 3, got %d", d.NoiseSeconds)
	}
	if d.AmbientVolumes == nil || len(d.AmbientVolumes) != 0 {
		t.Errorf("AmbientVolumes: want empty map, got %v", d.AmbientVolumes)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if cfg.DefaultPattern != Defaults().DefaultPattern {
		t.Errorf("DefaultPattern: want %q, got %q", Defaults().DefaultPattern, cfg.DefaultPattern)
	}
}

func TestLoadGlobalYAML(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	dir := filepath.Join(tmp, ".config", "respira")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "default_pattern: 4-7-8\nprobe_timeout: 4s\nstore_driver: sqlite\nambient_volumes:\n  rain: 0.6\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultPattern != "4-7-8" || cfg.ProbeTimeout != 4*time.Second || cfg.StoreDriver != "sqlite" {
		t.Fatalf("decoded: %+v", cfg)
	}
	if cfg.AmbientVolumes["rain"] != 0.6 {
		t.Fatalf("ambient volumes: %v", cfg.AmbientVolumes)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectJSON(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	if err := os.WriteFile(".respiraconfig", []byte(`{"meditation_minutes": 7, "haptic": "off"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadProject()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MeditationMinutes != 7 || cfg.Haptic != "off" {
		t.Fatalf("decoded: %+v", cfg)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	// Write an invalid JSON file where LoadGlobal expects it.
	cfgDir := filepath.Join(tmp, ".config", "respira")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"haptic":  func(c *Config) { c.Haptic = "vibrate" },
		"driver":  func(c *Config) { c.StoreDriver = "redis" },
		"probe":   func(c *Config) { c.ProbeTimeout = 0 },
		"noise":   func(c *Config) { c.NoiseSeconds = -1 },
		"volume":  func(c *Config) { c.AmbientVolumes = map[string]float64{"rain": 3} },
		"minutes": func(c *Config) { c.BreathingMinutes = -5 },
	}
	for name, mutate := range cases {
		c := Defaults()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
