package monitor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

type CacheOptions struct {
	// Backend is optional; without one the cache is purely in-memory.
	Backend SnapshotBackend
	Log     zerolog.Logger
}

// Cache holds the last observed snapshot per tracked entity. It is the
// single mutable state of the diff engine and is safe for concurrent
// readers; the monitor is its only writer during a tick.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Snapshot
	backend SnapshotBackend
	log     zerolog.Logger
}

// NewCache builds the cache, loading previously persisted snapshots when
// a backend is configured.
func NewCache(opts CacheOptions) (*Cache, error) {
	c := &Cache{
		entries: map[string]Snapshot{},
		backend: opts.Backend,
		log:     opts.Log,
	}
	if c.backend != nil {
		entries, err := c.backend.Load()
		if err != nil {
			return nil, fmt.Errorf("load snapshot backend: %w", err)
		}
		for id, snap := range entries {
			c.entries[id] = snap
		}
		if len(entries) > 0 {
			c.log.Info().Int("snapshots", len(entries)).Msg("restored status snapshots")
		}
	}
	return c, nil
}

// Lookup returns the cached snapshot for an entity, if one exists.
func (c *Cache) Lookup(entityID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.entries[entityID]
	return snap, ok
}

// Commit overwrites the entity's snapshot in place. Entries are never
// aged out; only Reset removes them.
func (c *Cache) Commit(snap Snapshot) {
	if snap.EntityID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snap.EntityID] = snap
}

// Reset drops every snapshot and persists the empty state, so a restart
// after a reset does not resurrect stale entries.
func (c *Cache) Reset() error {
	c.mu.Lock()
	c.entries = map[string]Snapshot{}
	c.mu.Unlock()
	return c.Flush()
}

// Len reports the number of tracked entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshots dumps all entries sorted by entity id.
func (c *Cache) Snapshots() []Snapshot {
	c.mu.RLock()
	out := make([]Snapshot, 0, len(c.entries))
	for _, snap := range c.entries {
		out = append(out, snap)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Flush persists the current entries through the backend, if any.
func (c *Cache) Flush() error {
	if c.backend == nil {
		return nil
	}
	c.mu.RLock()
	entries := make(map[string]Snapshot, len(c.entries))
	for id, snap := range c.entries {
		entries[id] = snap
	}
	c.mu.RUnlock()
	return c.backend.Save(entries)
}
