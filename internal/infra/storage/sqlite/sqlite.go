// Package sqlite stores stream state in a local SQLite file, for single-host
// runs without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/metrics"
	"github.com/vietddude/partsync/internal/infra/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	upsertStateQuery = `
INSERT INTO stream_states (stream, namespace, state, use_global_cursor, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (stream, namespace)
DO UPDATE SET state = excluded.state,
              use_global_cursor = excluded.use_global_cursor,
              updated_at = excluded.updated_at`

	getStateQuery    = `SELECT state FROM stream_states WHERE stream = ? AND namespace = ?`
	deleteStateQuery = `DELETE FROM stream_states WHERE stream = ? AND namespace = ?`
)

// StateRepo implements storage.StateRepository on SQLite.
type StateRepo struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*StateRepo, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return &StateRepo{db: db}, nil
}

func (r *StateRepo) Save(ctx context.Context, stream, namespace string, state domain.ManagerState) error {
	defer observe("save", time.Now())

	data, err := storage.EncodeState(state)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertStateQuery,
		stream, namespace, string(data), state.UseGlobalCursor, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (r *StateRepo) Get(ctx context.Context, stream, namespace string) (map[string]any, error) {
	defer observe("get", time.Now())

	var data string
	err := r.db.GetContext(ctx, &data, getStateQuery, stream, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return storage.DecodeState([]byte(data))
}

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

func (r *StateRepo) Close() error {
	return r.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.StateRepoLatency.WithLabelValues("sqlite", operation).Observe(time.Since(start).Seconds())
}
