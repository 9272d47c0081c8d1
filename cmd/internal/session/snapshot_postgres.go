package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSnapshotStore keeps the snapshot in a single JSONB row.
//
// Ownership model mirrors the app wiring: the pool lifecycle belongs to the
// caller, so Close here is a no-op.
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotStore constructs the store and ensures its table exists.
func NewPostgresSnapshotStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresSnapshotStore, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS nestwatch_snapshot (
	id       smallint PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	data     jsonb NOT NULL,
	saved_at timestamptz NOT NULL
)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	return &PostgresSnapshotStore{pool: pool}, nil
}

// Save upserts the singleton snapshot row.
func (s *PostgresSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	const q = `
INSERT INTO nestwatch_snapshot (id, data, saved_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`
	if _, err := s.pool.Exec(ctx, q, data, snap.SavedAt); err != nil {
		return fmt.Errorf("snapshot upsert: %w", err)
	}
	return nil
}

// Load reads the singleton row; no row yields an empty snapshot.
func (s *PostgresSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM nestwatch_snapshot WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("snapshot select: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}

// Close is a no-op; the pool is owned by the app.
func (s *PostgresSnapshotStore) Close() error { return nil }
