package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// Classifier recognizes constraint violations in the errors of one driver.
// It returns nil when err is not a constraint violation it knows about.
type Classifier func(err error) *core.ConstraintViolationError

var (
	classifiersMu sync.RWMutex
	classifiers   = make(map[string]Classifier)
)

// RegisterClassifier registers a classifier under a driver name.
// Registering the same name twice replaces the earlier classifier.
func RegisterClassifier(name string, c Classifier) {
	classifiersMu.Lock()
	defer classifiersMu.Unlock()
	classifiers[name] = c
}

// Classifiers returns the names of all registered classifiers.
func Classifiers() []string {
	classifiersMu.RLock()
	defer classifiersMu.RUnlock()
	return sortedKeys()
}

// Classify converts driver constraint errors into *core.ConstraintViolationError.
// Other errors, and errors that are already classified, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var cv *core.ConstraintViolationError
	if errors.As(err, &cv) {
		return err
	}

	classifiersMu.RLock()
	defer classifiersMu.RUnlock()

	for _, name := range sortedKeys() {
		if v := classifiers[name](err); v != nil {
			if v.Err == nil {
				v.Err = err
			}
			return v
		}
	}
	return err
}

// sortedKeys must be called with classifiersMu held.
func sortedKeys() []string {
	names := make([]string, 0, len(classifiers))
	for name := range classifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
