// Package dialect holds the SQL dialects known to leaprecord and a
// process-wide registry to look them up by name or by database/sql driver.
package dialect

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// Dialect registry
var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]*core.DialectConfig)
	byDriver   = make(map[string]*core.DialectConfig)
)

// ErrDialectRequired is returned when a dialect is required but not provided.
var ErrDialectRequired = errors.New("dialect is required")

// Get returns a dialect by name.
func Get(name string) (*core.DialectConfig, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// ForDriver returns the dialect spoken by a database/sql driver name.
func ForDriver(driver string) (*core.DialectConfig, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := byDriver[strings.ToLower(driver)]
	return d, ok
}

// Register registers a dialect in the global registry.
// Called by dialect implementations in their init() functions.
func Register(d *core.DialectConfig) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[strings.ToLower(d.Name)] = d
	for _, drv := range d.Drivers {
		byDriver[strings.ToLower(drv)] = d
	}
}

// List returns all registered dialect names (sorted).
func List() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDialectError is returned when a dialect or driver is not registered.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return "unknown dialect " + `"` + e.Name + `"` + "\nAvailable dialects: " + strings.Join(e.Available, ", ")
}

// Resolve returns the dialect named name, falling back to the dialect of
// the driver when name is empty.
func Resolve(name, driver string) (*core.DialectConfig, error) {
	if name != "" {
		if d, ok := Get(name); ok {
			return d, nil
		}
		return nil, &UnknownDialectError{Name: name, Available: List()}
	}
	if driver == "" {
		return nil, ErrDialectRequired
	}
	if d, ok := ForDriver(driver); ok {
		return d, nil
	}
	return nil, &UnknownDialectError{Name: driver, Available: List()}
}
