package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load reads the backing file into the store's explicit values without
// firing subscriptions; it runs at startup before any binding exists. A
// missing file is not an error. The file is JSON by convention; viper
// also accepts YAML or TOML by extension, though the store only ever
// writes JSON (mutations on a non-JSON file apply in memory only).
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	next, err := s.readFile()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for section, sec := range next {
		for key, v := range sec {
			putNested(s.values, section, key, v)
		}
	}
	return nil
}

// readFile parses the backing file into nested section/key/value form.
// Top-level entries that are not objects are ignored with a warning;
// the file format is two levels deep by contract.
func (s *Store) readFile() (map[string]map[string]any, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	if filepath.Ext(s.path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	out := make(map[string]map[string]any)
	for section, raw := range v.AllSettings() {
		sec, ok := raw.(map[string]any)
		if !ok {
			s.logger.Warn("Ignoring non-section config entry", "path", s.path, "entry", section)
			continue
		}
		for key, val := range sec {
			putNested(out, section, key, val)
		}
	}
	return out, nil
}

// persist writes the explicit values (never defaults) as indented JSON,
// atomically via a temp file rename. It records what it wrote so the
// watcher can tell the store's own writes from external edits.
func (s *Store) persist() error {
	if s.path == "" || !s.writable() {
		return nil
	}

	s.mu.Lock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encoding config file: %w", err)
	}
	data = append(data, '\n')
	s.lastSaved = data
	s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// writable reports whether the backing file is one the store may
// rewrite. Only JSON round-trips; clobbering a hand-written YAML or
// TOML file with JSON would destroy it.
func (s *Store) writable() bool {
	switch filepath.Ext(s.path) {
	case "", ".json":
		return true
	default:
		return false
	}
}
