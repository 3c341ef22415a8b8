package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFactoryClosed is returned by Factory methods after Close.
var ErrFactoryClosed = errors.New("store: factory is closed")

// Factory opens and caches Database handles for a single backend
// location. It is the unit of replacement during live reconfiguration:
// when the database directory changes, a new Factory is built against
// the new location and published, while requests already in flight
// finish against the Factory they captured. Swapped-out factories are
// never closed mid-flight; Close is reserved for process shutdown.
type Factory struct {
	spec   Spec
	driver Driver

	mu     sync.RWMutex
	open   map[string]Database
	closed bool
}

// NewFactory resolves the driver named by spec and returns a Factory
// rooted at the spec's location. It does not touch the backend yet;
// databases are created and opened lazily.
func NewFactory(spec Spec) (*Factory, error) {
	driver, err := Lookup(spec.Driver)
	if err != nil {
		return nil, fmt.Errorf("resolving backend driver: %w", err)
	}
	return &Factory{
		spec:   spec,
		driver: driver,
		open:   make(map[string]Database),
	}, nil
}

// Spec returns the backend location this factory serves.
func (f *Factory) Spec() Spec {
	return f.spec
}

// Create provisions a new database. It returns ErrDatabaseExists if a
// database with that name is already present at this location.
func (f *Factory) Create(ctx context.Context, name string) error {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return ErrFactoryClosed
	}
	if err := f.driver.Create(ctx, f.spec, name); err != nil {
		return fmt.Errorf("creating database %q: %w", name, err)
	}
	return nil
}

// Open returns a handle to an existing database, reusing a cached
// handle when one is already open. It returns ErrDatabaseNotFound if
// the database does not exist.
func (f *Factory) Open(ctx context.Context, name string) (Database, error) {
	f.mu.RLock()
	db, ok := f.open[name]
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return nil, ErrFactoryClosed
	}
	if ok {
		return db, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFactoryClosed
	}
	// Another goroutine may have opened it while we waited for the lock.
	if db, ok := f.open[name]; ok {
		return db, nil
	}
	db, err := f.driver.Open(ctx, f.spec, name)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", name, err)
	}
	f.open[name] = db
	return db, nil
}

// Delete removes a database and evicts any cached handle for it. It
// returns ErrDatabaseNotFound if the database does not exist.
func (f *Factory) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFactoryClosed
	}
	db, ok := f.open[name]
	delete(f.open, name)
	f.mu.Unlock()

	var closeErr error
	if ok {
		closeErr = db.Close()
	}
	if err := f.driver.Delete(ctx, f.spec, name); err != nil {
		return fmt.Errorf("deleting database %q: %w", name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing handle for deleted database %q: %w", name, closeErr)
	}
	return nil
}

// List returns the names of all databases at this location, sorted.
func (f *Factory) List(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return nil, ErrFactoryClosed
	}
	names, err := f.driver.List(ctx, f.spec)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return names, nil
}

// Close releases every cached handle. Further calls on the factory
// fail with ErrFactoryClosed.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var firstErr error
	for name, db := range f.open {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database %q: %w", name, err)
		}
	}
	f.open = nil
	return firstErr
}
