package pattern

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// customEntry is the on-disk shape of one custom pattern.
type customEntry struct {
	Name   string `yaml:"name"`
	Inhale int    `yaml:"inhale"`
	Hold   int    `yaml:"hold"`
	Exhale int    `yaml:"exhale"`
	Rest   int    `yaml:"rest"`
}

// FileRepository stores custom patterns as a YAML list.
type FileRepository struct {
	path string
}

// NewFileRepository returns a repository backed by path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// DefaultPath returns ~/.config/respira/patterns.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "respira", "patterns.yaml"), nil
}

// List returns the stored custom patterns. A missing file is an empty list.
// A malformed file also yields an empty list, together with the parse error
// so the caller can log it.
func (r *FileRepository) List() ([]Pattern, error) {
	entries, err := r.load()
	if err != nil {
		return []Pattern{}, err
	}
	out := make([]Pattern, 0, len(entries))
	for _, e := range entries {
		p, err := FromCustom(e.Name, e.Inhale, e.Hold, e.Exhale, e.Rest)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Add appends a custom pattern, replacing any with the same key.
func (r *FileRepository) Add(name string, inhale, hold, exhale, rest int) (Pattern, error) {
	p, err := FromCustom(name, inhale, hold, exhale, rest)
	if err != nil {
		return Pattern{}, err
	}
	for _, c := range Catalog() {
		if c.Key == p.Key {
			return Pattern{}, fmt.Errorf("%w: %q is a built-in pattern", ErrInvalidPattern, p.Key)
		}
	}
	entries, err := r.load()
	if err != nil {
		return Pattern{}, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if Slug(e.Name) != p.Key {
			kept = append(kept, e)
		}
	}
	kept = append(kept, customEntry{Name: name, Inhale: inhale, Hold: hold, Exhale: exhale, Rest: rest})
	return p, r.save(kept)
}

// Remove deletes the custom pattern with key. Removing an unknown key
// returns ErrUnknownPattern.
func (r *FileRepository) Remove(key string) error {
	entries, err := r.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if Slug(e.Name) == key {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownPattern, key)
	}
	return r.save(kept)
}

func (r *FileRepository) load() ([]customEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []customEntry{}, nil
		}
		return nil, fmt.Errorf("read patterns: %w", err)
	}
	var entries []customEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse patterns %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *FileRepository) save(entries []customEntry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create patterns dir: %w", err)
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write patterns: %w", err)
	}
	return nil
}
