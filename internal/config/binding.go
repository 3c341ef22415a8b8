package config

import (
	"fmt"
	"log/slog"
)

// Binder wires rebuild functions to configuration keys. Each binding
// runs its rebuild once synchronously at bind time, so the derived
// object exists before the first request, and again on every change to
// any of its keys.
//
// The two invocation paths fail differently on purpose: a failed
// initial build aborts startup (there is nothing valid to fall back
// to), while a failed reactive rebuild is logged and the previously
// built object stays active. Stale but valid beats crashed.
type Binder struct {
	store  *Store
	logger *slog.Logger
}

// NewBinder returns a Binder notifying through the given logger. A nil
// logger falls back to slog.Default.
func NewBinder(store *Store, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{store: store, logger: logger}
}

// Bind subscribes rebuild to every key and runs it once before
// returning. The name identifies the binding in logs.
func (b *Binder) Bind(name string, keys []string, rebuild func() error) error {
	for _, key := range keys {
		key := key
		b.store.On(key, func() {
			if err := runRebuild(rebuild); err != nil {
				b.logger.Error("Config rebuild failed, keeping previous state",
					"binding", name,
					"key", key,
					"error", err)
			}
		})
	}
	if err := runRebuild(rebuild); err != nil {
		return fmt.Errorf("initial %s build: %w", name, err)
	}
	return nil
}

// runRebuild recovers a panicking rebuild into an error: one malformed
// configuration value must never take the process down.
func runRebuild(rebuild func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rebuild panicked: %v", r)
		}
	}()
	return rebuild()
}
