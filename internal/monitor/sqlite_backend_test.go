package monitor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/taskpulse/internal/workspace"
)

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshots.db")
	backend, err := NewSQLiteSnapshotBackend(path)
	require.NoError(t, err)

	entries := map[string]Snapshot{
		"r1": snapshotFixture("r1", "In Progress"),
		"r2": snapshotFixture("r2", "Done"),
	}
	require.NoError(t, backend.Save(entries))

	loaded, err := backend.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "In Progress", loaded["r1"].RawLabel)
	assert.Equal(t, workspace.BucketCompleted, loaded["r2"].Bucket)
	require.NoError(t, backend.Close())

	// The snapshot survives a process restart.
	reopened, err := NewSQLiteSnapshotBackend(path)
	require.NoError(t, err)
	defer reopened.Close()

	persisted, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, "Done", persisted["r2"].RawLabel)
}

func TestSQLiteBackendLoadsEmptyBeforeFirstSave(t *testing.T) {
	backend, err := NewSQLiteSnapshotBackend(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer backend.Close()

	loaded, err := backend.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteBackendOverwritesPriorState(t *testing.T) {
	backend, err := NewSQLiteSnapshotBackend(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Save(map[string]Snapshot{"r1": snapshotFixture("r1", "Todo")}))
	require.NoError(t, backend.Save(map[string]Snapshot{"r1": snapshotFixture("r1", "Closed")}))

	loaded, err := backend.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Closed", loaded["r1"].RawLabel)
}

func TestSQLiteBackendIgnoresNilSave(t *testing.T) {
	backend, err := NewSQLiteSnapshotBackend(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Save(map[string]Snapshot{"r1": snapshotFixture("r1", "Todo")}))
	require.NoError(t, backend.Save(nil))

	loaded, err := backend.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1, "nil save must not clear persisted state")
}

func TestSQLiteBackendRequiresPath(t *testing.T) {
	_, err := NewSQLiteSnapshotBackend("")
	require.ErrorIs(t, err, ErrInvalidInput)
}
