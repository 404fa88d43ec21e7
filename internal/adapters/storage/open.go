// Package storage selects the blob store backend from configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/samirrijal/fieldsync/internal/adapters/filestore"
	"github.com/samirrijal/fieldsync/internal/adapters/postgres"
	"github.com/samirrijal/fieldsync/internal/adapters/valkey"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/pkg/config"
)

// Store is a blob store that can report its own health.
type Store interface {
	ports.BlobStore
	Ping(ctx context.Context) error
}

// Backend is an opened blob store. DB is set only for the postgres driver.
type Backend struct {
	Store  Store
	Driver string
	DB     *postgres.DB
	close  func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects the backend named by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Storage.Driver {
	case "file":
		s, err := filestore.New(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, Driver: "file"}, nil

	case "valkey":
		s, err := valkey.New(cfg.Valkey.Addr, cfg.Storage.ValkeyPrefix)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, Driver: "valkey", close: s.Close}, nil

	case "postgres":
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Backend{Store: postgres.NewBlobStore(db), Driver: "postgres", DB: db, close: db.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
