package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/fieldsync/internal/core/ports"
)

// BlobStore implements ports.BlobStore on the blobs table.
type BlobStore struct {
	db *DB
}

// NewBlobStore creates a new BlobStore.
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{db: db}
}

// Get returns the blob stored under name.
func (r *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM blobs WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select blob %s: %w", name, err)
	}
	return data, nil
}

// Put inserts or replaces the blob stored under name.
func (r *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO blobs (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, name, data)
	if err != nil {
		return fmt.Errorf("upsert blob %s: %w", name, err)
	}
	return nil
}

// Ping checks the pool.
func (r *BlobStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
