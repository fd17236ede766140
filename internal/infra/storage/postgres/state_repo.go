package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/metrics"
	"github.com/vietddude/partsync/internal/infra/storage"
)

const (
	upsertStateQuery = `
INSERT INTO stream_states (stream, namespace, state, use_global_cursor, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (stream, namespace)
DO UPDATE SET state = EXCLUDED.state,
              use_global_cursor = EXCLUDED.use_global_cursor,
              updated_at = EXCLUDED.updated_at`

	getStateQuery    = `SELECT state FROM stream_states WHERE stream = $1 AND namespace = $2`
	deleteStateQuery = `DELETE FROM stream_states WHERE stream = $1 AND namespace = $2`
)

// StateRepo implements storage.StateRepository using PostgreSQL.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new PostgreSQL state repository.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Save upserts the state snapshot of a stream.
func (r *StateRepo) Save(
	ctx context.Context,
	stream, namespace string,
	state domain.ManagerState,
) error {
	defer observe("save", time.Now())

	data, err := storage.EncodeState(state)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertStateQuery, stream, namespace, string(data), state.UseGlobalCursor); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Get retrieves the state snapshot of a stream.
func (r *StateRepo) Get(ctx context.Context, stream, namespace string) (map[string]any, error) {
	defer observe("get", time.Now())

	var data []byte
	err := r.db.GetContext(ctx, &data, getStateQuery, stream, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return storage.DecodeState(data)
}

// Delete removes the state snapshot of a stream.
func (r *StateRepo) Delete(ctx context.Context, stream, namespace string) error {
	defer observe("delete", time.Now())

	res, err := r.db.ExecContext(ctx, deleteStateQuery, stream, namespace)
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrStateNotFound
	}
	return nil
}

// Close closes the database connection.
func (r *StateRepo) Close() error {
	return r.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.StateRepoLatency.WithLabelValues("postgres", operation).Observe(time.Since(start).Seconds())
}
