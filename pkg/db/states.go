package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/device-manager/pkg/state"
)

const statesLogPrefix = "db:states"

// StateRepository is a state.Store backed by the dm_states table.
type StateRepository struct {
	pool *pgxpool.Pool
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(pool *pgxpool.Pool) *StateRepository {
	return &StateRepository{pool: pool}
}

// Ensure inserts id with the initial value unless a row exists.
func (r *StateRepository) Ensure(ctx context.Context, id, initial string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dm_states (id, val, ack) VALUES ($1, $2, TRUE) ON CONFLICT (id) DO NOTHING`,
		id, initial)
	if err != nil {
		return fmt.Errorf("%s - failed to ensure %s: %w", statesLogPrefix, id, err)
	}
	return nil
}

// Set upserts the value of id.
func (r *StateRepository) Set(ctx context.Context, id, val string, ack bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dm_states (id, val, ack, ts) VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET val = EXCLUDED.val, ack = EXCLUDED.ack, ts = EXCLUDED.ts`,
		id, val, ack)
	if err != nil {
		return fmt.Errorf("%s - failed to set %s: %w", statesLogPrefix, id, err)
	}
	return nil
}

// Get returns the value of id, or nil if no row exists.
func (r *StateRepository) Get(ctx context.Context, id string) (*state.Value, error) {
	var v state.Value
	err := r.pool.QueryRow(ctx, `SELECT val, ack, ts FROM dm_states WHERE id = $1`, id).Scan(&v.Val, &v.Ack, &v.Ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get %s: %w", statesLogPrefix, id, err)
	}
	return &v, nil
}

// Ping checks the connection.
func (r *StateRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
