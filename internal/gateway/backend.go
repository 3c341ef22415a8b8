package gateway

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/phrazzld/duffel/internal/config"
	"github.com/phrazzld/duffel/internal/redact"
	"github.com/phrazzld/duffel/internal/store"
)

// defaultDriver is the storage engine used when no static override is
// given.
const defaultDriver = "sqlite"

// BackendSelector owns the current *store.Factory and rebuilds it when
// the database directory key changes, folding in the static startup
// overrides (in-memory flag, backend identifier, key prefix).
//
// Replaced factories are dropped, not closed: requests that captured
// the old factory finish against it undisturbed, and no open handle is
// ever migrated.
type BackendSelector struct {
	store   *config.Store
	statics config.StoreConfig
	logger  *slog.Logger
	factory atomic.Pointer[store.Factory]
}

// NewBackendSelector registers the database directory default (the
// static startup directory, or the working directory when unset) and
// returns a selector. The factory is nil until the first Rebuild.
func NewBackendSelector(cfgStore *config.Store, statics config.StoreConfig, logger *slog.Logger) *BackendSelector {
	if logger == nil {
		logger = slog.Default()
	}
	dir := statics.Dir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		} else {
			dir = "."
		}
	}
	cfgStore.RegisterDefault("couchdb", "database_dir", dir)
	return &BackendSelector{store: cfgStore, statics: statics, logger: logger}
}

// Keys returns the configuration keys the selector reacts to.
func (s *BackendSelector) Keys() []string {
	return []string{"couchdb.database_dir"}
}

// Factory returns the current factory snapshot. Callers use one
// snapshot for the whole request.
func (s *BackendSelector) Factory() *store.Factory {
	return s.factory.Load()
}

// Rebuild resolves the backend spec from configuration and statics,
// ensures the directory exists, opens a fresh factory, and publishes it
// atomically. The previous factory keeps serving its in-flight
// requests.
func (s *BackendSelector) Rebuild() error {
	dir, err := filepath.Abs(s.store.GetString("couchdb", "database_dir"))
	if err != nil {
		return fmt.Errorf("resolving database directory: %w", err)
	}

	spec := store.Spec{Dir: dir, Driver: defaultDriver}
	if s.statics.Backend != "" {
		spec.Driver = s.statics.Backend
	}
	if s.statics.Prefix != "" {
		spec.Prefix = s.statics.Prefix
	}
	// The in-memory flag beats an alternate backend by evaluation
	// order; both set together is not an error.
	if s.statics.InMemory {
		spec.Driver = "memory"
	}

	if spec.Prefix == "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	factory, err := store.NewFactory(spec)
	if err != nil {
		return err
	}
	s.factory.Store(factory)
	s.logger.Info("Backend ready",
		"driver", spec.Driver,
		"location", redact.URL(spec.Location()))
	return nil
}
