// Package db persists device manager states in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// One row per state; the write rate is bounded by GUI clicks.
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies SQL migration files in order. Every migration is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus prints whether the dm_states table exists and, once it does, how many
// states it holds and when the newest was written.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	var table *string
	if err := pool.QueryRow(ctx, `SELECT to_regclass('public.dm_states')::text`).Scan(&table); err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}
	if table == nil {
		fmt.Printf("Migration status: not applied (run 'device-manager migrate up'). %d migration files\n", len(files))
		return nil
	}

	var (
		count  int64
		newest *time.Time
	)
	if err := pool.QueryRow(ctx, `SELECT count(*), max(ts) FROM dm_states`).Scan(&count, &newest); err != nil {
		return fmt.Errorf("%s - failed to count states: %w", statusLogPrefix, err)
	}

	last := "never"
	if newest != nil {
		last = newest.UTC().Format(time.RFC3339)
	}
	fmt.Printf("Migration status: applied (%d migration files). %d states, last write %s\n", len(files), count, last)
	return nil
}
