// Package monitor implements the poll/diff/notify loop over tracked
// collections: the status cache with its pluggable snapshot backends, the
// tick engine, and the notification dispatchers.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/taskpulse/taskpulse/internal/workspace"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
	ErrTickInFlight   = errors.New("tick already in flight")
)

// Shared by the database-backed snapshot stores.
const (
	snapshotStoreKey        = "default"
	backendOperationTimeout = 5 * time.Second
)

// Snapshot is the last observed status of one tracked entity.
type Snapshot struct {
	EntityID  string           `json:"entityId"`
	Title     string           `json:"title"`
	RawLabel  string           `json:"rawLabel"`
	Bucket    workspace.Bucket `json:"bucket"`
	CheckedAt time.Time        `json:"checkedAt"`
}

// snapshotState is the persisted envelope written by durable backends.
type snapshotState struct {
	SavedAt time.Time           `json:"savedAt"`
	Entries map[string]Snapshot `json:"entries"`
}

// SnapshotBackend persists the status cache across restarts. Backends own
// their operation timeouts; Load and Save are called outside any tick-
// critical section. A nil entries map from Load means "nothing persisted".
type SnapshotBackend interface {
	Load() (map[string]Snapshot, error)
	Save(entries map[string]Snapshot) error
	Close() error
}

// InMemorySnapshotBackend keeps the persisted state in process memory.
// Round-trips through JSON so callers never share maps with the backend.
type InMemorySnapshotBackend struct {
	mu       sync.Mutex
	snapshot *snapshotState
}

func NewInMemorySnapshotBackend() *InMemorySnapshotBackend {
	return &InMemorySnapshotBackend{}
}

func (b *InMemorySnapshotBackend) Load() (map[string]Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	data, err := json.Marshal(b.snapshot)
	if err != nil {
		return nil, err
	}
	var clone snapshotState
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return clone.Entries, nil
}

func (b *InMemorySnapshotBackend) Save(entries map[string]Snapshot) error {
	if b == nil || entries == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.Marshal(snapshotState{SavedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return err
	}
	var clone snapshotState
	if err := json.Unmarshal(data, &clone); err != nil {
		return err
	}
	b.snapshot = &clone
	return nil
}

func (b *InMemorySnapshotBackend) Close() error {
	return nil
}

// JSONFileSnapshotBackend persists the cache as one JSON document.
// Writes go through a temp file and rename, so readers never observe a
// torn document.
type JSONFileSnapshotBackend struct {
	Path string
}

func NewJSONFileSnapshotBackend(path string) *JSONFileSnapshotBackend {
	return &JSONFileSnapshotBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileSnapshotBackend) Load() (map[string]Snapshot, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var state snapshotState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state.Entries, nil
}

func (b *JSONFileSnapshotBackend) Save(entries map[string]Snapshot) error {
	if b == nil || strings.TrimSpace(b.Path) == "" || entries == nil {
		return nil
	}
	data, err := json.MarshalIndent(snapshotState{SavedAt: time.Now().UTC(), Entries: entries}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".snapshots-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func (b *JSONFileSnapshotBackend) Close() error {
	return nil
}
