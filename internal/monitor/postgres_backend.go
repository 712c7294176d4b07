package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSnapshotBackend stores the whole cache as one JSONB row, keyed
// so several deployments can share a database. Connection and schema
// setup are deferred to the first operation.
type PostgresSnapshotBackend struct {
	dsn      string
	storeKey string

	connOnce sync.Once
	connErr  error
	db       *sql.DB
}

func NewPostgresSnapshotBackend(dsn string) (SnapshotBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresSnapshotBackend{dsn: dsn, storeKey: snapshotStoreKey}, nil
}

func (b *PostgresSnapshotBackend) Load() (map[string]Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	var raw []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT snapshot FROM taskpulse_snapshots WHERE store_key = $1",
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

func (b *PostgresSnapshotBackend) Save(entries map[string]Snapshot) error {
	if b == nil || entries == nil {
		return nil
	}
	if err := b.connect(); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshotState{SavedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	// lib/pq encodes []byte as bytea, which jsonb rejects; send text.
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO taskpulse_snapshots (store_key, snapshot, saved_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (store_key) DO UPDATE SET snapshot = EXCLUDED.snapshot, saved_at = NOW()`,
		b.storeKey, string(payload))
	return err
}

func (b *PostgresSnapshotBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *PostgresSnapshotBackend) connect() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.connOnce.Do(func() {
		db, err := sql.Open("postgres", b.dsn)
		if err != nil {
			b.connErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			b.connErr = fmt.Errorf("connect to postgres: %w", err)
			return
		}
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS taskpulse_snapshots (
				store_key TEXT PRIMARY KEY,
				snapshot JSONB NOT NULL,
				saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			_ = db.Close()
			b.connErr = fmt.Errorf("ensure snapshot table: %w", err)
			return
		}
		b.db = db
	})
	return b.connErr
}
