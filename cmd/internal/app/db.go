package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewSnapshotDBPool opens the pgx pool backing the Postgres snapshot store.
// The pool is owned by the app: the snapshot store borrows it and the
// readiness probe reuses it.
func NewSnapshotDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("snapshot db url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot db pool: %w", err)
	}

	// Fail startup loudly rather than restoring from a backend that is down.
	if err := PingSnapshotDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot db ping: %w", err)
	}

	return pool, nil
}

// PingSnapshotDB reports whether the snapshot database is reachable within
// the timeout. The readiness probe calls this when configured to gate on the
// store.
func PingSnapshotDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}
