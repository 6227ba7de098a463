package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/device-manager/internal/config"
	"github.com/morezero/device-manager/pkg/db"
	"github.com/morezero/device-manager/pkg/state"
)

// openStore opens the configured state backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, func(), error) {
	switch cfg.StateBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		slog.Info(fmt.Sprintf("%s - Using postgres state store", logPrefix))
		return db.NewStateRepository(pool), pool.Close, nil

	case config.BackendRedis:
		rs, err := state.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s - invalid REDIS_URL: %w", logPrefix, err)
		}
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("%s - failed to reach redis: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Using redis state store", logPrefix))
		return rs, func() {
			if err := rs.Close(); err != nil {
				slog.Warn(fmt.Sprintf("%s - redis close: %v", logPrefix, err))
			}
		}, nil

	default:
		slog.Info(fmt.Sprintf("%s - Using in-memory state store", logPrefix))
		return state.NewMemoryStore(), func() {}, nil
	}
}
