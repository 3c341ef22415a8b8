package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// ErrNotSet is returned by Delete when no explicit value exists for the
// key. Registered defaults cannot be deleted.
var ErrNotSet = errors.New("config: value not set")

// Store is the mutable runtime configuration: sectioned key/value pairs
// with registered defaults and synchronous change subscriptions. It is
// constructed once in main and injected by reference into everything
// that reads or reacts to configuration.
//
// Values are JSON scalars or strings. Explicit values are persisted to
// the store's file on every mutation; defaults never are.
type Store struct {
	path   string
	logger *slog.Logger

	// fireMu serializes whole mutation turns (update, persist, notify)
	// so rebuild-and-swap sequences never interleave.
	fireMu sync.Mutex

	mu        sync.Mutex
	values    map[string]map[string]any
	defaults  map[string]map[string]any
	subs      map[string][]func()
	lastSaved []byte
}

// NewStore returns a Store persisting to path. An empty path keeps the
// store purely in memory. A nil logger falls back to slog.Default.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return &Store{
		path:     path,
		logger:   logger,
		values:   make(map[string]map[string]any),
		defaults: make(map[string]map[string]any),
		subs:     make(map[string][]func()),
	}
}

// Path returns the absolute path of the backing file, empty when the
// store is memory-only.
func (s *Store) Path() string {
	return s.path
}

// RegisterDefault records a fallback value for the key. It never fires
// subscriptions and never overrides an explicit value; calling it again
// is a no-op in effect.
func (s *Store) RegisterDefault(section, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.defaults[section]
	if !ok {
		sec = make(map[string]any)
		s.defaults[section] = sec
	}
	sec[key] = value
}

// Get returns the current effective value: the explicit value if one
// was set, else the registered default, else ok=false.
func (s *Store) Get(section, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(section, key)
}

// GetString returns the effective value coerced to a string, empty when
// the key is absent.
func (s *Store) GetString(section, key string) string {
	v, ok := s.Get(section, key)
	if !ok {
		return ""
	}
	return cast.ToString(v)
}

// GetBool returns the effective value coerced to a bool, false when the
// key is absent or not truthy.
func (s *Store) GetBool(section, key string) bool {
	v, ok := s.Get(section, key)
	if !ok {
		return false
	}
	return cast.ToBool(v)
}

// Set records an explicit value, persists the file, and fires the
// key's subscriptions synchronously in registration order. It returns
// the previous effective value. Setting a value equal to the current
// one still notifies: rebuilds are cheap and idempotent, and equality
// suppression belongs to the file watcher alone.
//
// A persistence failure does not roll the value back; it is returned so
// callers can surface it, with the in-memory state already applied.
func (s *Store) Set(section, key string, value any) (any, error) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	prev, _ := s.lookupLocked(section, key)
	sec, ok := s.values[section]
	if !ok {
		sec = make(map[string]any)
		s.values[section] = sec
	}
	sec[key] = value
	subs := append([]func(){}, s.subs[section+"."+key]...)
	s.mu.Unlock()

	err := s.persist()
	for _, fn := range subs {
		fn()
	}
	return prev, err
}

// Delete removes the explicit value so the key falls back to its
// default (or to absence), persists the file, and fires the key's
// subscriptions. It returns the removed value, or ErrNotSet when no
// explicit value existed.
func (s *Store) Delete(section, key string) (any, error) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	sec := s.values[section]
	prev, ok := sec[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotSet
	}
	delete(sec, key)
	if len(sec) == 0 {
		delete(s.values, section)
	}
	subs := append([]func(){}, s.subs[section+"."+key]...)
	s.mu.Unlock()

	err := s.persist()
	for _, fn := range subs {
		fn()
	}
	return prev, err
}

// On subscribes fn to changes of the key named by its "section.key"
// identifier. The callback is not invoked at registration time; the
// Binder layers the initial synthetic call on top of this.
func (s *Store) On(identifier string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[identifier] = append(s.subs[identifier], fn)
}

// All returns the effective configuration, defaults overlaid with
// explicit values, as a deep copy safe to serialize.
func (s *Store) All() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]any)
	for section, sec := range s.defaults {
		for key, v := range sec {
			putNested(out, section, key, v)
		}
	}
	for section, sec := range s.values {
		for key, v := range sec {
			putNested(out, section, key, v)
		}
	}
	return out
}

// Section returns the effective values of one section, empty when the
// section has none.
func (s *Store) Section(name string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any)
	for key, v := range s.defaults[name] {
		out[key] = v
	}
	for key, v := range s.values[name] {
		out[key] = v
	}
	return out
}

func (s *Store) lookupLocked(section, key string) (any, bool) {
	if sec, ok := s.values[section]; ok {
		if v, ok := sec[key]; ok {
			return v, true
		}
	}
	if sec, ok := s.defaults[section]; ok {
		if v, ok := sec[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func putNested(m map[string]map[string]any, section, key string, v any) {
	sec, ok := m[section]
	if !ok {
		sec = make(map[string]any)
		m[section] = sec
	}
	sec[key] = v
}

// SplitKey breaks a "section.key" identifier at the first dot. The
// section carries no dots; the key may ("couchdb.database_dir" is
// section "couchdb", key "database_dir").
func SplitKey(identifier string) (section, key string) {
	section, key, ok := strings.Cut(identifier, ".")
	if !ok {
		return identifier, ""
	}
	return section, key
}
