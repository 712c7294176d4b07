package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotBackend mirrors the postgres backend's single-row layout
// on an embedded database file. WAL mode keeps concurrent readers cheap.
type SQLiteSnapshotBackend struct {
	path     string
	storeKey string

	openOnce sync.Once
	openErr  error
	db       *sql.DB
}

func NewSQLiteSnapshotBackend(path string) (SnapshotBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteSnapshotBackend{path: path, storeKey: snapshotStoreKey}, nil
}

func (b *SQLiteSnapshotBackend) Load() (map[string]Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	if err := b.open(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	var raw []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT snapshot FROM taskpulse_snapshots WHERE store_key = ?",
		b.storeKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state snapshotState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode persisted snapshots: %w", err)
	}
	return state.Entries, nil
}

func (b *SQLiteSnapshotBackend) Save(entries map[string]Snapshot) error {
	if b == nil || entries == nil {
		return nil
	}
	if err := b.open(); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshotState{SavedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO taskpulse_snapshots (store_key, snapshot, saved_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT (store_key) DO UPDATE SET snapshot = excluded.snapshot, saved_at = datetime('now')`,
		b.storeKey, string(payload))
	return err
}

func (b *SQLiteSnapshotBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteSnapshotBackend) open() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.openOnce.Do(func() {
		if dir := filepath.Dir(b.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.openErr = err
				return
			}
		}
		db, err := sql.Open("sqlite", b.path)
		if err != nil {
			b.openErr = err
			return
		}
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			b.openErr = fmt.Errorf("set WAL mode: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
		defer cancel()

		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS taskpulse_snapshots (
				store_key TEXT PRIMARY KEY,
				snapshot TEXT NOT NULL,
				saved_at TEXT NOT NULL
			)`); err != nil {
			_ = db.Close()
			b.openErr = err
			return
		}
		b.db = db
	})
	return b.openErr
}
