package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Watch follows the backing file until ctx is done, applying external
// edits through Set and Delete so subscriptions fire for every key that
// actually changed. The store's own writes are recognized by content
// and skipped, so a Set never loops back through the watcher.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	// Watch the directory, not the file: editors and atomic writers
	// replace the file, and a watch on the old inode goes stale.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching config directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Config file watcher error", "error", err)
			}
		}
	}()
	return nil
}

// reload re-reads the file and applies the difference against the
// current explicit values, key by key, through the normal mutation
// path.
func (s *Store) reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("Failed to re-read config file", "path", s.path, "error", err)
		return
	}
	s.mu.Lock()
	echo := s.lastSaved != nil && bytes.Equal(raw, s.lastSaved)
	s.mu.Unlock()
	if echo {
		return
	}

	next, err := s.readFile()
	if err != nil {
		s.logger.Warn("Ignoring unparseable config file edit", "path", s.path, "error", err)
		return
	}

	type change struct {
		section, key string
		value        any
		remove       bool
	}
	var changes []change

	s.mu.Lock()
	for section, sec := range next {
		for key, v := range sec {
			cur, ok := s.values[section][key]
			if !ok || !reflect.DeepEqual(cur, v) {
				changes = append(changes, change{section: section, key: key, value: v})
			}
		}
	}
	for section, sec := range s.values {
		for key := range sec {
			if _, ok := next[section][key]; !ok {
				changes = append(changes, change{section: section, key: key, remove: true})
			}
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		if c.remove {
			if _, err := s.Delete(c.section, c.key); err != nil && !errors.Is(err, ErrNotSet) {
				s.logger.Warn("Failed to apply config file removal",
					"section", c.section, "key", c.key, "error", err)
			}
			continue
		}
		if _, err := s.Set(c.section, c.key, c.value); err != nil {
			s.logger.Warn("Failed to apply config file change",
				"section", c.section, "key", c.key, "error", err)
		}
	}
	if len(changes) > 0 {
		s.logger.Info("Applied external config file edit",
			"path", s.path, "changed_keys", len(changes))
	}
}
