// Package repository persists finished matches and their replay histories in
// PostgreSQL. The live engine never touches the database; records are written
// once when a match ends and read back for replay verification.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/config"
)

// DB wraps the pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB opens a connection pool and verifies connectivity.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts the pool down.
func (db *DB) Close() {
	db.pool.Close()
}

// Migrate creates the match tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS finished_matches (
	match_id    TEXT PRIMARY KEY,
	player1_id  TEXT NOT NULL,
	player2_id  TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	seed        BIGINT NOT NULL,
	rounds      INT NOT NULL,
	checksum    TEXT NOT NULL,
	history     JSONB NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_finished_matches_finished_at
	ON finished_matches (finished_at);
`
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
