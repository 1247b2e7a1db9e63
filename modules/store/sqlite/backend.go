package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/chanreset/internal/taskstore"
)

// Compile-time interface check.
var _ taskstore.PersistentStore = (*Backend)(nil)

// Backend is a taskstore.PersistentStore keeping the encoded store in a
// single row. Each write replaces the row inside one statement, so readers
// see either the old or the new blob.
type Backend struct {
	db *sql.DB
}

// ReadAll implements taskstore.PersistentStore.
func (b *Backend) ReadAll(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, "SELECT data FROM task_state WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read task state: %w", err)
	}
	return data, nil
}

// WriteAll implements taskstore.PersistentStore.
func (b *Backend) WriteAll(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx, `INSERT INTO task_state (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`, data)
	if err != nil {
		return fmt.Errorf("sqlite: write task state: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
