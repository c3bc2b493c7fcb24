package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Migrate creates the gallery schema. Statements are idempotent so the
// API server can run this on every boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS artislife`,
		`CREATE TABLE IF NOT EXISTS artislife.users (
			user_id        text PRIMARY KEY,
			balance_micros bigint NOT NULL DEFAULT 0,
			tier           text NOT NULL DEFAULT 'guest',
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS artislife.inventory (
			user_id    text NOT NULL REFERENCES artislife.users(user_id),
			item_id    text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artislife.acquisitions (
			tx_id         uuid PRIMARY KEY,
			user_id       text NOT NULL REFERENCES artislife.users(user_id),
			subject       text NOT NULL DEFAULT '',
			kind          text NOT NULL,
			amount_micros bigint NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS acquisitions_user_idx
			ON artislife.acquisitions (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS artislife.replay_keys (
			user_id    text NOT NULL REFERENCES artislife.users(user_id),
			key        text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
