package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearStates deletes every stored state. The schema is preserved.
func ClearStates(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	slog.Info(fmt.Sprintf("%s - Clearing dm_states", clearLogPrefix))

	tag, err := pool.Exec(ctx, `DELETE FROM dm_states`)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Removed %d states", clearLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
