package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/respira/internal/store"
)

// Config is the persisted external audio choice for one session type.
type Config struct {
	Kind   Kind    `json:"kind"`
	Source string  `json:"source"`
	Volume float64 `json:"volume"`
}

// Enabled reports whether the config names a source to play.
func (c Config) Enabled() bool {
	return c.Kind != KindNone && c.Kind != "" && c.Source != ""
}

// Validate checks kind, source and volume.
func (c Config) Validate() error {
	switch c.Kind {
	case KindNone:
		return nil
	case KindFile, KindPlayer:
	default:
		return fmt.Errorf("unknown audio kind %q (want file or player)", c.Kind)
	}
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("audio source is required")
	}
	if strings.Contains(c.Source, "://") {
		u, err := url.Parse(c.Source)
		if err != nil {
			return fmt.Errorf("invalid audio source: %w", err)
		}
		if c.Kind == KindFile && u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return fmt.Errorf("unsupported scheme %q for file audio", u.Scheme)
		}
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %v", c.Volume)
	}
	return nil
}

func configKey(sessionType string) string {
	return "audio." + sessionType
}

// LoadConfig reads the config for sessionType. Missing or unreadable values
// yield a KindNone config; read failures are logged, never returned.
func LoadConfig(ctx context.Context, st store.Store, sessionType string, logger *log.Logger) Config {
	none := Config{Kind: KindNone, Volume: 1}
	raw, err := st.Get(ctx, configKey(sessionType))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && logger != nil {
			logger.Warn("read audio config", "type", sessionType, "err", err)
		}
		return none
	}
	var c Config
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.Validate() != nil {
		if logger != nil {
			logger.Warn("ignoring malformed audio config", "type", sessionType, "value", raw)
		}
		return none
	}
	return c
}

// SaveConfig validates and stores c for sessionType.
func SaveConfig(ctx context.Context, st store.Store, sessionType string, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal audio config: %w", err)
	}
	return st.Set(ctx, configKey(sessionType), string(data))
}

// ClearConfig removes the stored config for sessionType.
func ClearConfig(ctx context.Context, st store.Store, sessionType string) error {
	return st.Delete(ctx, configKey(sessionType))
}
