package monitor

import (
	"strings"
	"sync"
)

// SnapshotBackendFactory builds a backend for one DSN scheme. Factories
// registered here take precedence over the built-in schemes.
type SnapshotBackendFactory func(dsn string) (SnapshotBackend, error)

var (
	backendFactoriesMu sync.RWMutex
	backendFactories   = make(map[string]SnapshotBackendFactory)
)

// RegisterSnapshotBackendFactory makes a custom backend available to
// BuildSnapshotBackendFromDSN under the given scheme. Blank schemes and
// nil factories are ignored.
func RegisterSnapshotBackendFactory(scheme string, factory SnapshotBackendFactory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	backendFactoriesMu.Lock()
	defer backendFactoriesMu.Unlock()
	backendFactories[scheme] = factory
}

func lookupSnapshotBackendFactory(scheme string) (SnapshotBackendFactory, bool) {
	backendFactoriesMu.RLock()
	defer backendFactoriesMu.RUnlock()
	factory, ok := backendFactories[strings.ToLower(strings.TrimSpace(scheme))]
	return factory, ok
}
