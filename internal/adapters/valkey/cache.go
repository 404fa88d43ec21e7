package valkey

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/fieldsync/internal/core/ports"
)

// BlobStore implements ports.BlobStore using Valkey (Redis-compatible).
// Blobs live under "<prefix>:<name>" with no expiry.
type BlobStore struct {
	client valkey.Client
	prefix string
}

// New creates a new Valkey blob store client.
func New(addr, prefix string) (*BlobStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client valkey.Client, prefix string) *BlobStore {
	if prefix == "" {
		prefix = "fieldsync"
	}
	return &BlobStore{client: client, prefix: prefix}
}

func (s *BlobStore) key(name string) string {
	return s.prefix + ":" + name
}

// Get retrieves a blob by name.
func (s *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	b, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(name)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ports.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", name, err)
	}
	return b, nil
}

// Put stores a blob, replacing any previous value.
func (s *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	cmd := s.client.Do(ctx, s.client.B().Set().Key(s.key(name)).Value(valkey.BinaryString(data)).Build())
	if err := cmd.Error(); err != nil {
		return fmt.Errorf("valkey set %s: %w", name, err)
	}
	return nil
}

// Ping checks the connection.
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *BlobStore) Close() {
	s.client.Close()
}
