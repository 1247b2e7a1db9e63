// Package postgres stores the reset task blob in PostgreSQL through
// jackc/pgx/v5, for deployments that run more than one host against the
// same schedule.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flemzord/chanreset/internal/taskstore"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx used by Backend.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const defaultKey = "default"

const schema = `CREATE TABLE IF NOT EXISTS chanreset_task_state (
	name       TEXT        PRIMARY KEY,
	data       BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Compile-time interface check.
var _ taskstore.PersistentStore = (*Backend)(nil)

// Backend is a taskstore.PersistentStore keeping the encoded store in one
// row keyed by name.
type Backend struct {
	db   DBTX
	name string
	pool *pgxpool.Pool
}

// New wraps an existing connection. An empty name selects "default".
func New(db DBTX, name string) *Backend {
	if name == "" {
		name = defaultKey
	}
	return &Backend{db: db, name: name}
}

// Open connects to dsn, creates the table when missing and returns a
// Backend owning the pool.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	b := New(pool, "")
	b.pool = pool
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// Migrate creates the state table if needed.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// ReadAll implements taskstore.PersistentStore.
func (b *Backend) ReadAll(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(ctx, `SELECT data FROM chanreset_task_state WHERE name = $1`, b.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: read task state: %w", err)
	}
	return data, nil
}

// WriteAll implements taskstore.PersistentStore.
func (b *Backend) WriteAll(ctx context.Context, data []byte) error {
	_, err := b.db.Exec(ctx,
		`INSERT INTO chanreset_task_state (name, data) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		b.name, data,
	)
	if err != nil {
		return fmt.Errorf("postgres: write task state: %w", err)
	}
	return nil
}

// Close releases the pool when the Backend owns one.
func (b *Backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
