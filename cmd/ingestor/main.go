package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/fieldsync/internal/adapters/storage"
	"github.com/samirrijal/fieldsync/internal/adapters/wateriso"
	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
	"github.com/samirrijal/fieldsync/internal/pkg/config"
	"github.com/samirrijal/fieldsync/internal/pkg/logging"
)

// Seeds the cached site set from site dumps and, with -remote, from the
// remote all-sites query, then saves it.
//
//	ingestor [-remote] [file.json ...]
func main() {
	remote := flag.Bool("remote", false, "also fetch every site from the remote service")
	parallel := flag.Int("parallel", 4, "files read concurrently")
	flag.Parse()

	cfg, err := config.Load("fieldsync-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	root := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if !*remote && flag.NArg() == 0 {
		log.Fatal("usage: ingestor [-remote] [file.json ...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer backend.Close()

	cache := usecases.NewSiteCache(backend.Store, cfg.Storage.SitesBlob, logging.Component(root, "site_cache"))
	if o := cache.Load(ctx); o == usecases.OutcomeFailed {
		// merging into an empty set would overwrite what is stored
		log.Fatalf("existing cache could not be loaded")
	}
	before := cache.Len()

	if err := ingestFiles(ctx, cache, flag.Args(), *parallel); err != nil {
		log.Fatalf("ingest: %v", err)
	}

	if *remote {
		if err := ingestRemote(ctx, cfg, cache, root); err != nil {
			log.Fatalf("remote: %v", err)
		}
	}

	slog.Info("ingestion complete", "before", before, "after", cache.Len())
	if o := cache.Save(ctx); o != usecases.OutcomeSaved && o != usecases.OutcomeEmpty {
		log.Fatalf("save cache: %s", o)
	}
}

// ingestFiles reads every file concurrently and merges the sites into cache
// in argument order, so the first file to mention a site wins.
func ingestFiles(ctx context.Context, cache *usecases.SiteCache, paths []string, parallel int) error {
	results := make([][]domain.Site, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			sites, err := parseSites(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = sites
			slog.Info("file read", "path", path, "sites", len(sites))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, sites := range results {
		added := cache.Merge(sites)
		slog.Info("file merged", "path", paths[i], "new", len(added))
	}
	return nil
}

// ingestRemote runs the all-sites query through the synchronizer, which
// merges the result into the cache before delivering it.
func ingestRemote(ctx context.Context, cfg *config.Config, cache *usecases.SiteCache, root *slog.Logger) error {
	client := wateriso.NewClient(wateriso.Options{
		BaseURL:      cfg.Remote.BaseURL,
		SitesPath:    cfg.Remote.SitesPath,
		SiteInfoPath: cfg.Remote.SiteInfoPath,
		Timeout:      cfg.Remote.Timeout,
		Logger:       logging.Component(root, "wateriso"),
	})
	projects := usecases.NewProjectStore(nil, cfg.Storage.ProjectsBlob, nil)

	dispatcher := usecases.NewDispatcher(1)
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go dispatcher.Run(dctx)

	// The probe is skipped: an explicit -remote run should fail loudly.
	syncer := usecases.NewSiteSynchronizer(client, wateriso.StaticProbe(true), cache, projects, dispatcher, logging.Component(root, "sync"))
	defer syncer.Close()

	var result *usecases.SitesResult
	syncer.FetchAllSites(ctx, func(res usecases.SitesResult) { result = &res })
	syncer.Wait()

	// Deliveries run in order on the dispatcher, so once this marker runs
	// the result, if any, has been handed over.
	flushed := make(chan struct{})
	if !dispatcher.Post(func() { close(flushed) }) {
		return ctx.Err()
	}
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}

	if result == nil {
		return errors.New("remote response was discarded, see logs")
	}
	if result.ErrMessage != "" {
		return errors.New(result.ErrMessage)
	}
	slog.Info("remote sites received", "count", len(result.Sites))
	return nil
}
