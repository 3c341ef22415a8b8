package store

import (
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under the given name. It is meant
// to be called from a backend package's init function, following the
// database/sql convention. Register panics on a duplicate or empty
// name: both indicate a wiring bug, not a runtime condition.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if name == "" || driver == nil {
		panic("store: Register called with empty name or nil driver")
	}
	if _, dup := drivers[name]; dup {
		panic("store: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	driver, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, driverNamesLocked())
	}
	return driver, nil
}

// Drivers returns the sorted names of all registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return driverNamesLocked()
}

func driverNamesLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
