package ports

import (
	"context"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

// BlobStore persists opaque named blobs. Get returns ErrBlobNotFound when
// nothing was ever stored under name.
type BlobStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
}

// SiteSource queries the remote site service.
type SiteSource interface {
	// SitesInWindow returns the partial sites inside w, or every site when w is nil.
	SitesInWindow(ctx context.Context, w *domain.Window) ([]domain.Site, error)
	// SiteDetail returns the full record for one site.
	SiteDetail(ctx context.Context, id string) (*domain.Site, error)
}
