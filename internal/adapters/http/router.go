package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	v1.Post("/viewport/location", with(LocationUpdateHandler(deps)))
	v1.Post("/viewport/pan", with(PanHandler(deps)))
	v1.Post("/viewport/select", with(SelectSiteHandler(deps)))

	v1.Get("/sites", with(ListSitesHandler(deps)))
	v1.Get("/sites/window", with(SitesInWindowHandler(deps)))

	v1.Post("/cache/save", with(PersistHandler(deps.Cache, true)))
	v1.Post("/cache/load", with(PersistHandler(deps.Cache, false)))
	v1.Post("/projects/save", with(PersistHandler(deps.Projects, true)))
	v1.Post("/projects/load", with(PersistHandler(deps.Projects, false)))

	v1.Get("/projects", with(ListProjectsHandler(deps)))
	v1.Post("/projects", with(CreateProjectHandler(deps)))
	v1.Get("/projects/:id", with(GetProjectHandler(deps)))
	v1.Delete("/projects/:id", with(DeleteProjectHandler(deps)))
	v1.Post("/projects/:id/sites", with(AttachSiteHandler(deps)))
	v1.Post("/projects/:id/samples", with(AddSampleHandler(deps)))

	v1.Get("/export", with(ExportHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	specPath := deps.SpecPath
	if specPath == "" {
		specPath = "api/openapi.yaml"
	}
	SetupDocs(app, specPath)

	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
