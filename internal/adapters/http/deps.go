package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

// Pinger is implemented by every blob store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Viewport *usecases.ViewportService
	Cache    *usecases.SiteCache
	Projects *usecases.ProjectStore
	Export   *usecases.ExportService
	Probe    ports.ConnectivityProbe
	Store    Pinger
	NATS     *nats.Conn
	SpecPath string // OpenAPI document served under /docs, defaults to api/openapi.yaml
}
