package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/fieldsync/internal/adapters/http"
	natsadapter "github.com/samirrijal/fieldsync/internal/adapters/nats"
	"github.com/samirrijal/fieldsync/internal/adapters/storage"
	"github.com/samirrijal/fieldsync/internal/adapters/wateriso"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
	"github.com/samirrijal/fieldsync/internal/pkg/config"
	"github.com/samirrijal/fieldsync/internal/pkg/logging"
	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
	"github.com/samirrijal/fieldsync/internal/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("fieldsync-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := run(cfg); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	root := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Blob storage
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer backend.Close()
	slog.Info("blob store opened", "driver", backend.Driver)

	// Remote site service
	var probe ports.ConnectivityProbe = wateriso.NewProbe(cfg.Remote.BaseURL, cfg.Remote.ProbeTimeout)
	if cfg.Remote.Offline {
		probe = wateriso.StaticProbe(false)
		slog.Info("offline mode, remote site service disabled")
	}
	client := wateriso.NewClient(wateriso.Options{
		BaseURL:      cfg.Remote.BaseURL,
		SitesPath:    cfg.Remote.SitesPath,
		SiteInfoPath: cfg.Remote.SiteInfoPath,
		Timeout:      cfg.Remote.Timeout,
		Logger:       logging.Component(root, "wateriso"),
	})

	// NATS (optional)
	var (
		publisher ports.EventPublisher
		natsConn  *nats.Conn
	)
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, site events disabled", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			natsConn = pub.Conn()
		}
	}

	// Use cases
	cache := usecases.NewSiteCache(backend.Store, cfg.Storage.SitesBlob, logging.Component(root, "site_cache"))
	projects := usecases.NewProjectStore(backend.Store, cfg.Storage.ProjectsBlob, logging.Component(root, "projects"))
	cache.Load(ctx)
	projects.Load(ctx)

	dispatcher := usecases.NewDispatcher(cfg.Sync.DispatchBuffer)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	go dispatcher.Run(dispatchCtx)

	syncer := usecases.NewSiteSynchronizer(client, probe, cache, projects, dispatcher, logging.Component(root, "sync"))
	viewport := usecases.NewViewportService(usecases.ViewportConfig{
		HalfWidthKm:     cfg.Sync.WindowHalfWidthKm,
		StabilizeMeters: cfg.Sync.StabilizeMeters,
		MaxZoomSpan:     cfg.Sync.MaxZoomSpan,
	}, usecases.NewWindowTracker(cfg.Sync.WindowHalfWidthKm), syncer, projects, publisher, logging.Component(root, "viewport"))

	deps := &http.Dependencies{
		Viewport: viewport,
		Cache:    cache,
		Projects: projects,
		Export:   usecases.NewExportService(projects, cfg.Export.DateLayout, cfg.Export.TimeLayout),
		Probe:    probe,
		Store:    backend.Store,
		NATS:     natsConn,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "fieldsync API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	if backend.DB != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.ObservePool(backend.DB.Pool.Stat())
				}
			}
		})
	}

	waitErr := g.Wait()
	if errors.Is(waitErr, context.Canceled) {
		waitErr = nil
	}

	// Stop fetching before the final save so nothing lands mid-write.
	syncer.Close()
	stopDispatch()
	<-dispatcher.Done()

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	cache.Save(saveCtx)
	projects.Save(saveCtx)

	slog.Info("server stopped")
	return waitErr
}
