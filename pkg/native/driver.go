package native

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options are passed to a driver when opening a runtime.
type Options struct {
	UserDataDir string
	Logger      logrus.FieldLogger
}

// Driver opens a runtime instance.
type Driver interface {
	Open(opts Options) (Core, Display, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name. It panics if name is
// registered twice or driver is nil.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if driver == nil {
		panic("native: Register driver is nil")
	}

	if _, dup := drivers[name]; dup {
		panic("native: Register called twice for driver " + name)
	}

	drivers[name] = driver
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Open opens a runtime with the named driver.
func Open(name string, opts Options) (Core, Display, error) {
	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("unknown native driver %q (registered: %v)", name, Drivers())
	}

	return driver.Open(opts)
}
