// Package storage provides the PostgreSQL persistence layer for the
// comparison-and-rating subsystem: catalog reads, comparison writes,
// leaderboard upserts, and the pessimistic locking the RatingEngine needs to
// serialize against a second instance of itself.
//
// It manages connection pooling via pgxpool and exposes typed row structs
// with explicit, eagerly-joined queries — no ORM, no lazy loading (spec §9).
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool for every query in this subsystem.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool. dsn should point to
// PgBouncer (or directly to Postgres in dev).
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
