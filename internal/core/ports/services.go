package ports

import (
	"context"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

// ConnectivityProbe answers whether the remote service is reachable right now.
type ConnectivityProbe interface {
	IsOnline(ctx context.Context) bool
}

// EventPublisher publishes site events to a message broker.
type EventPublisher interface {
	PublishSitesDiscovered(ctx context.Context, sites []domain.Site) error
	PublishSiteAttached(ctx context.Context, projectID string, site domain.Site) error
}
