package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable respira settings.
type Config struct {
	DefaultPattern    string             `mapstructure:"default_pattern" json:"default_pattern"`
	BreathingMinutes  int                `mapstructure:"breathing_minutes" json:"breathing_minutes"`   // 0 = until stopped
	MeditationMinutes int                `mapstructure:"meditation_minutes" json:"meditation_minutes"` // 0 = catalog length
	ProbeTimeout      time.Duration      `mapstructure:"probe_timeout" json:"probe_timeout"`
	Haptic            string             `mapstructure:"haptic" json:"haptic"` // "bell" | "tone" | "notify" | "off"
	StoreDriver       string             `mapstructure:"store_driver" json:"store_driver"`
	DataDir           string             `mapstructure:"data_dir" json:"data_dir"`
	RemoteURL         string             `mapstructure:"remote_url" json:"remote_url"`
	AmbientVolumes    map[string]float64 `mapstructure:"ambient_volumes" json:"ambient_volumes"`
	NoiseSeconds      int                `mapstructure:"noise_seconds" json:"noise_seconds"`
	PlayerCommand     string             `mapstructure:"player_command" json:"player_command"`
	Listen            string             `mapstructure:"listen" json:"listen"`
	LogLevel          string             `mapstructure:"log_level" json:"log_level"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		DefaultPattern: "box",
		ProbeTimeout:   10 * time.Second,
		Haptic:         "bell",
		StoreDriver:    "file",
		AmbientVolumes: map[string]float64{},
		NoiseSeconds:   3,
		PlayerCommand:  "mpv",
		LogLevel:       "info",
	}
}

// GlobalDir returns ~/.config/respira.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "respira"), nil
}

// LoadGlobal reads ~/.config/respira/config.yaml, or config.json when no
// YAML file exists. Returns defaults if neither is present.
func LoadGlobal() (*Config, error) {
	dir, err := GlobalDir()
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"config.yaml", "config.json"} {
		cfg, err := loadFile(filepath.Join(dir, name))
		if err != nil || cfg != nil {
			return cfg, err
		}
	}
	d := Defaults()
	return &d, nil
}

// LoadProject reads .respiraconfig (JSON) in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".respiraconfig")
}

// loadFile reads and decodes the config file at path; the format follows
// the extension, JSON when there is none. Returns nil when the file is
// absent.
func loadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) != ".yaml" && filepath.Ext(path) != ".yml" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, src := range []*Config{global, project} {
		if src == nil {
			continue
		}
		overlay(&result, src)
	}
	return result
}

func overlay(dst, src *Config) {
	setString(&dst.DefaultPattern, src.DefaultPattern)
	setString(&dst.Haptic, src.Haptic)
	setString(&dst.StoreDriver, src.StoreDriver)
	setString(&dst.DataDir, src.DataDir)
	setString(&dst.RemoteURL, src.RemoteURL)
	setString(&dst.PlayerCommand, src.PlayerCommand)
	setString(&dst.Listen, src.Listen)
	setString(&dst.LogLevel, src.LogLevel)
	if src.BreathingMinutes > 0 {
		dst.BreathingMinutes = src.BreathingMinutes
	}
	if src.MeditationMinutes > 0 {
		dst.MeditationMinutes = src.MeditationMinutes
	}
	if src.ProbeTimeout > 0 {
		dst.ProbeTimeout = src.ProbeTimeout
	}
	if src.NoiseSeconds > 0 {
		dst.NoiseSeconds = src.NoiseSeconds
	}
	if len(src.AmbientVolumes) > 0 {
		vols := make(map[string]float64, len(dst.AmbientVolumes)+len(src.AmbientVolumes))
		for k, v := range dst.AmbientVolumes {
			vols[k] = v
		}
		for k, v := range src.AmbientVolumes {
			vols[k] = v
		}
		dst.AmbientVolumes = vols
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.Haptic {
	case "bell", "tone", "notify", "off":
	default:
		return fmt.Errorf("haptic: unknown provider %q (want bell, tone, notify or off)", c.Haptic)
	}
	switch c.StoreDriver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("store_driver: unknown driver %q (want file or sqlite)", c.StoreDriver)
	}
	if c.BreathingMinutes < 0 || c.MeditationMinutes < 0 {
		return errors.New("session minutes cannot be negative")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.NoiseSeconds <= 0 {
		return fmt.Errorf("noise_seconds must be positive, got %d", c.NoiseSeconds)
	}
	for k, v := range c.AmbientVolumes {
		if v < 0 || v > 1 {
			return fmt.Errorf("ambient_volumes.%s must be between 0 and 1, got %v", k, v)
		}
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
