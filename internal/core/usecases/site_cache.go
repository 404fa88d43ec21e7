package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

// siteSet is immutable once published.
type siteSet struct {
	list  []domain.Site
	index map[string]struct{}
}

func newSiteSet(sites []domain.Site) *siteSet {
	s := &siteSet{index: make(map[string]struct{}, len(sites))}
	for _, site := range sites {
		if _, dup := s.index[site.ID]; dup {
			continue
		}
		s.index[site.ID] = struct{}{}
		s.list = append(s.list, site)
	}
	return s
}

// sitesBlob is the persisted layout, shared with the seed files.
type sitesBlob struct {
	Sites []domain.Site `json:"sites"`
}

// SiteCache is the process-wide set of every site ever received, keyed by ID
// and kept in arrival order. Readers get snapshots; a merge or a load is
// published as one pointer swap.
type SiteCache struct {
	store  ports.BlobStore
	name   string
	logger *slog.Logger

	mu   sync.Mutex // serializes writers
	set  atomic.Pointer[siteSet]
	save atomic.Bool
	load atomic.Bool
}

// NewSiteCache creates an empty cache persisted under blob name.
func NewSiteCache(store ports.BlobStore, name string, logger *slog.Logger) *SiteCache {
	c := &SiteCache{store: store, name: name, logger: loggerOrDefault(logger)}
	c.set.Store(newSiteSet(nil))
	return c
}

// Sites returns a snapshot of the cached sites in arrival order.
func (c *SiteCache) Sites() []domain.Site {
	return append([]domain.Site(nil), c.set.Load().list...)
}

// Len returns the number of cached sites.
func (c *SiteCache) Len() int {
	return len(c.set.Load().list)
}

// Contains reports whether a site with the given ID is cached.
func (c *SiteCache) Contains(id string) bool {
	_, ok := c.set.Load().index[id]
	return ok
}

// InWindow returns the cached sites inside w, bounds inclusive.
func (c *SiteCache) InWindow(w domain.Window) []domain.Site {
	var out []domain.Site
	for _, s := range c.set.Load().list {
		if w.Contains(s.Location) {
			out = append(out, s)
		}
	}
	return out
}

// Merge appends the sites whose IDs are not cached yet and returns them.
func (c *SiteCache) Merge(sites []domain.Site) []domain.Site {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.set.Load()
	var added []domain.Site
	seen := make(map[string]struct{})
	for _, s := range sites {
		if _, ok := cur.index[s.ID]; ok {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		added = append(added, s)
	}
	if len(added) == 0 {
		return nil
	}

	next := &siteSet{
		list:  make([]domain.Site, 0, len(cur.list)+len(added)),
		index: make(map[string]struct{}, len(cur.index)+len(added)),
	}
	next.list = append(append(next.list, cur.list...), added...)
	for id := range cur.index {
		next.index[id] = struct{}{}
	}
	for id := range seen {
		next.index[id] = struct{}{}
	}
	c.set.Store(next)
	metrics.CachedSites.Set(float64(len(next.list)))
	return added
}

// Save persists the cache. A save already in progress or an empty cache
// turns the call into a no-op.
func (c *SiteCache) Save(ctx context.Context) Outcome {
	if !c.save.CompareAndSwap(false, true) {
		return recordOutcome(c.logger, c.name, "save", OutcomeBusy, nil)
	}
	defer c.save.Store(false)

	snapshot := c.set.Load().list
	if len(snapshot) == 0 {
		return recordOutcome(c.logger, c.name, "save", OutcomeEmpty, nil)
	}
	data, err := json.Marshal(sitesBlob{Sites: snapshot})
	if err != nil {
		return recordOutcome(c.logger, c.name, "save", OutcomeFailed, fmt.Errorf("encode sites: %w", err))
	}
	if err := c.store.Put(ctx, c.name, data); err != nil {
		return recordOutcome(c.logger, c.name, "save", OutcomeFailed, err)
	}
	return recordOutcome(c.logger, c.name, "save", OutcomeSaved, nil)
}

// Load replaces the in-memory set with the persisted one. On any failure the
// in-memory set is left as it was.
func (c *SiteCache) Load(ctx context.Context) Outcome {
	if !c.load.CompareAndSwap(false, true) {
		return recordOutcome(c.logger, c.name, "load", OutcomeBusy, nil)
	}
	defer c.load.Store(false)

	data, err := c.store.Get(ctx, c.name)
	if errors.Is(err, ports.ErrBlobNotFound) {
		return recordOutcome(c.logger, c.name, "load", OutcomeMissing, nil)
	}
	if err != nil {
		return recordOutcome(c.logger, c.name, "load", OutcomeFailed, err)
	}
	var blob sitesBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return recordOutcome(c.logger, c.name, "load", OutcomeFailed, fmt.Errorf("decode sites: %w", err))
	}

	next := newSiteSet(blob.Sites)
	c.mu.Lock()
	c.set.Store(next)
	c.mu.Unlock()
	metrics.CachedSites.Set(float64(len(next.list)))
	return recordOutcome(c.logger, c.name, "load", OutcomeLoaded, nil)
}
