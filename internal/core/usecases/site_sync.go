package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

// RequestKind groups requests that preempt each other.
type RequestKind int

const (
	KindWindowedSites RequestKind = iota
	KindSiteDetail
	numKinds
)

func (k RequestKind) String() string {
	switch k {
	case KindWindowedSites:
		return "sites"
	case KindSiteDetail:
		return "site_detail"
	default:
		return "unknown"
	}
}

// Source says where a result came from.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceCache   Source = "cache"
	SourcePartial Source = "partial"
)

// SitesResult is delivered for windowed and all-sites fetches. Window is nil
// for an all-sites fetch. ErrMessage is set on transport failure, in which
// case Sites is empty.
type SitesResult struct {
	Kind       RequestKind
	Window     *domain.Window
	Sites      []domain.Site
	Source     Source
	ErrMessage string
}

// SiteResult is delivered for a site detail fetch with the site as stored in
// the project.
type SiteResult struct {
	ProjectID  string
	Site       domain.Site
	Source     Source
	ErrMessage string
}

type (
	SitesFunc func(SitesResult)
	SiteFunc  func(SiteResult)
)

type slot struct {
	gen    uint64
	cancel context.CancelFunc
}

// SiteSynchronizer fetches sites from the remote service, or from the cached
// site set when offline. At most one request per kind is in flight: a newer
// request cancels the older one, and the older one never delivers.
// Fetching and cache appends run on a worker goroutine; results are handed
// to the Dispatcher.
type SiteSynchronizer struct {
	source     ports.SiteSource
	probe      ports.ConnectivityProbe
	cache      *SiteCache
	projects   *ProjectStore
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu     sync.Mutex
	slots  [numKinds]slot
	closed bool
	wg     sync.WaitGroup
}

// NewSiteSynchronizer wires a synchronizer. logger may be nil.
func NewSiteSynchronizer(
	source ports.SiteSource,
	probe ports.ConnectivityProbe,
	cache *SiteCache,
	projects *ProjectStore,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) *SiteSynchronizer {
	return &SiteSynchronizer{
		source:     source,
		probe:      probe,
		cache:      cache,
		projects:   projects,
		dispatcher: dispatcher,
		logger:     loggerOrDefault(logger),
	}
}

// FetchSitesInWindow fetches the sites inside w.
func (s *SiteSynchronizer) FetchSitesInWindow(ctx context.Context, w domain.Window, onResult SitesFunc) {
	s.fetchSites(ctx, &w, onResult)
}

// FetchAllSites fetches every site. It shares the windowed kind, so it
// preempts and is preempted by windowed fetches.
func (s *SiteSynchronizer) FetchAllSites(ctx context.Context, onResult SitesFunc) {
	s.fetchSites(ctx, nil, onResult)
}

func (s *SiteSynchronizer) fetchSites(parent context.Context, w *domain.Window, onResult SitesFunc) {
	const kind = KindWindowedSites
	ctx, gen, ok := s.begin(parent, kind)
	if !ok {
		return
	}
	go func() {
		defer s.wg.Done()
		defer s.finish(kind, gen)

		if !s.probe.IsOnline(ctx) {
			var sites []domain.Site
			if w != nil {
				sites = s.cache.InWindow(*w)
			} else {
				sites = s.cache.Sites()
			}
			metrics.SyncFetches.WithLabelValues(kind.String(), string(SourceCache)).Inc()
			s.deliver(kind, gen, func() {
				onResult(SitesResult{Kind: kind, Window: w, Sites: sites, Source: SourceCache})
			})
			return
		}

		metrics.SyncFetches.WithLabelValues(kind.String(), string(SourceRemote)).Inc()
		sites, err := s.source.SitesInWindow(ctx, w)
		if err != nil {
			if !s.reportFailure(ctx, kind, err) {
				return
			}
			msg := err.Error()
			s.deliver(kind, gen, func() {
				onResult(SitesResult{Kind: kind, Window: w, Source: SourceRemote, ErrMessage: msg})
			})
			return
		}

		var added []domain.Site
		if !s.whileCurrent(kind, gen, func() { added = s.cache.Merge(sites) }) {
			return
		}
		if len(added) > 0 {
			s.logger.Debug("new sites cached", "count", len(added), "total", s.cache.Len())
		}
		s.deliver(kind, gen, func() {
			onResult(SitesResult{Kind: kind, Window: w, Sites: sites, Source: SourceRemote})
		})
	}()
}

// FetchSiteDetail fetches the full record for partial.ID and merges it into
// the project. When offline, or when the remote call yields nothing usable,
// the partial site is merged as given.
func (s *SiteSynchronizer) FetchSiteDetail(ctx context.Context, projectID string, partial domain.Site, onResult SiteFunc) {
	const kind = KindSiteDetail
	ctx, gen, ok := s.begin(ctx, kind)
	if !ok {
		return
	}
	go func() {
		defer s.wg.Done()
		defer s.finish(kind, gen)

		site, source, errMsg := partial, SourcePartial, ""
		if s.probe.IsOnline(ctx) {
			metrics.SyncFetches.WithLabelValues(kind.String(), string(SourceRemote)).Inc()
			detail, err := s.source.SiteDetail(ctx, partial.ID)
			switch {
			case err == nil && detail != nil:
				site, source = *detail, SourceRemote
				if site.ID == "" {
					site.ID = partial.ID
				}
			case err != nil:
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				if s.reportFailure(ctx, kind, err) {
					errMsg = err.Error()
				}
			}
		} else {
			metrics.SyncFetches.WithLabelValues(kind.String(), string(SourcePartial)).Inc()
		}

		var (
			stored domain.Site
			err    error
		)
		if !s.whileCurrent(kind, gen, func() { stored, err = s.projects.MergeSite(projectID, site) }) {
			return
		}
		if err != nil {
			s.logger.Warn("site merge failed", "project", projectID, "site", site.ID, "error", err)
			msg := err.Error()
			s.deliver(kind, gen, func() {
				onResult(SiteResult{ProjectID: projectID, Site: site, Source: source, ErrMessage: msg})
			})
			return
		}
		s.deliver(kind, gen, func() {
			onResult(SiteResult{ProjectID: projectID, Site: stored, Source: source, ErrMessage: errMsg})
		})
	}()
}

// Wait blocks until every issued request has finished its worker step.
// Results may still be queued on the dispatcher. Callers must not issue new
// fetches while waiting.
func (s *SiteSynchronizer) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight requests and waits for their goroutines.
// Nothing is delivered after Close returns.
func (s *SiteSynchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	for i := range s.slots {
		if s.slots[i].cancel != nil {
			s.slots[i].cancel()
			s.slots[i].cancel = nil
		}
		s.slots[i].gen++
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// begin supersedes the in-flight request of kind and registers a new one.
func (s *SiteSynchronizer) begin(parent context.Context, kind RequestKind) (context.Context, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, false
	}
	sl := &s.slots[kind]
	if sl.cancel != nil {
		sl.cancel()
		metrics.SyncPreemptions.WithLabelValues(kind.String()).Inc()
	}
	ctx, cancel := context.WithCancel(parent)
	sl.gen++
	sl.cancel = cancel
	s.wg.Add(1)
	return ctx, sl.gen, true
}

func (s *SiteSynchronizer) finish(kind RequestKind, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl := &s.slots[kind]; sl.gen == gen && sl.cancel != nil {
		sl.cancel()
		sl.cancel = nil
	}
}

func (s *SiteSynchronizer) isCurrent(kind RequestKind, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.slots[kind].gen == gen
}

// whileCurrent runs fn only if the request is still the newest of its kind,
// holding s.mu so no newer request can begin in between. fn must not call
// back into the synchronizer.
func (s *SiteSynchronizer) whileCurrent(kind RequestKind, gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.slots[kind].gen != gen {
		return false
	}
	fn()
	return true
}

// deliver posts fn to the dispatcher; fn only runs if the request is still
// the newest of its kind when the dispatcher gets to it.
func (s *SiteSynchronizer) deliver(kind RequestKind, gen uint64, fn func()) {
	posted := s.dispatcher.Post(func() {
		if !s.isCurrent(kind, gen) {
			return
		}
		metrics.SyncDeliveries.WithLabelValues(kind.String()).Inc()
		fn()
	})
	if !posted {
		s.logger.Debug("dispatcher stopped, result dropped", "kind", kind.String())
	}
}

// reportFailure classifies a fetch error. It returns true only for transport
// errors, which are reported to the subscriber. Cancellation is silent and a
// malformed payload is logged.
func (s *SiteSynchronizer) reportFailure(ctx context.Context, kind RequestKind, err error) bool {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ports.ErrMalformedResponse):
		metrics.SyncErrors.WithLabelValues(kind.String(), "malformed").Inc()
		s.logger.Error("discarding malformed response", "kind", kind.String(), "error", err)
		return false
	default:
		metrics.SyncErrors.WithLabelValues(kind.String(), "transport").Inc()
		s.logger.Warn("remote fetch failed", "kind", kind.String(), "error", err)
		return true
	}
}
