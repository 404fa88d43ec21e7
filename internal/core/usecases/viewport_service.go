package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/pkg/geospatial"
)

const publishTimeout = 5 * time.Second

// ViewportConfig tunes when a viewport change triggers a fetch.
type ViewportConfig struct {
	HalfWidthKm     float64
	StabilizeMeters float64
	MaxZoomSpan     float64 // degrees of longitude
}

// Recenter asks the client to move the viewport instead of fetching.
type Recenter struct {
	Center domain.GeoPoint `json:"center"`
	Span   float64         `json:"span"`
}

// PanOutcome reports what a pan did.
type PanOutcome struct {
	Crossing domain.Crossing
	Fetched  bool
	Window   *domain.Window
	Recenter *Recenter
}

// ViewportService turns viewport events into window commits and fetches,
// and keeps the displayed site set. The displayed set is only written from
// the dispatcher goroutine.
type ViewportService struct {
	cfg       ViewportConfig
	tracker   *WindowTracker
	sync      *SiteSynchronizer
	projects  *ProjectStore
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu             sync.Mutex
	lastFix        *domain.GeoPoint
	selected       *domain.GeoPoint
	initialFetched bool

	displayed atomic.Pointer[siteSet]
}

// NewViewportService creates the service and seeds the displayed set with
// every site already saved in a project. publisher may be nil.
func NewViewportService(
	cfg ViewportConfig,
	tracker *WindowTracker,
	syncer *SiteSynchronizer,
	projects *ProjectStore,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) *ViewportService {
	v := &ViewportService{
		cfg:       cfg,
		tracker:   tracker,
		sync:      syncer,
		projects:  projects,
		publisher: publisher,
		logger:    loggerOrDefault(logger),
	}
	v.displayed.Store(newSiteSet(projects.Sites()))
	return v
}

// Displayed returns the sites currently shown, in the order they appeared.
func (v *ViewportService) Displayed() []domain.Site {
	return append([]domain.Site(nil), v.displayed.Load().list...)
}

// OnLocationUpdate handles a device location fix. The first fetch waits
// until two consecutive fixes are closer than StabilizeMeters; later fixes
// are treated like pans. It reports whether a fetch was issued.
func (v *ViewportService) OnLocationUpdate(ctx context.Context, p domain.GeoPoint) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("%w: location out of range", ErrInvalidInput)
	}
	v.mu.Lock()
	prev := v.lastFix
	v.lastFix = &p
	initial := v.initialFetched
	if !initial {
		if prev == nil || geospatial.Haversine(prev.Lat, prev.Lon, p.Lat, p.Lon) >= v.cfg.StabilizeMeters {
			v.mu.Unlock()
			return false, nil
		}
		v.initialFetched = true
	}
	v.mu.Unlock()

	if !initial {
		v.logger.Info("location stabilized, fetching initial window", "lat", p.Lat, "lon", p.Lon)
		v.commitAndFetch(ctx, p)
		return true, nil
	}
	out := v.classifyAndFetch(ctx, p)
	return out.Fetched, nil
}

// OnPan handles a viewport move. A viewport wider than MaxZoomSpan is not
// fetched; the caller is asked to zoom back in around the selected site, or
// the last location fix.
func (v *ViewportService) OnPan(ctx context.Context, center domain.GeoPoint, lonSpan float64) (PanOutcome, error) {
	if !center.Valid() {
		return PanOutcome{}, fmt.Errorf("%w: center out of range", ErrInvalidInput)
	}
	if lonSpan > v.cfg.MaxZoomSpan {
		v.mu.Lock()
		target := center
		switch {
		case v.selected != nil:
			target = *v.selected
		case v.lastFix != nil:
			target = *v.lastFix
		}
		v.mu.Unlock()
		return PanOutcome{Recenter: &Recenter{Center: target, Span: v.cfg.MaxZoomSpan * 0.9}}, nil
	}
	return v.classifyAndFetch(ctx, center), nil
}

// SelectSite focuses the viewport on an existing site and fetches around it.
func (v *ViewportService) SelectSite(ctx context.Context, location domain.GeoPoint) (domain.Window, error) {
	if !location.Valid() {
		return domain.Window{}, fmt.Errorf("%w: location out of range", ErrInvalidInput)
	}
	v.mu.Lock()
	v.selected = &location
	v.initialFetched = true
	v.mu.Unlock()
	return v.commitAndFetch(ctx, location), nil
}

// AttachSite adds a site to a project, fetching its full record when
// possible. A missing site ID is generated. It returns the site ID.
func (v *ViewportService) AttachSite(ctx context.Context, projectID string, partial domain.Site) (string, error) {
	if partial.ID == "" {
		id, err := v.projects.NextSiteID(projectID)
		if err != nil {
			return "", err
		}
		partial.ID = id
	} else if _, err := v.projects.Get(projectID); err != nil {
		return "", err
	}
	if err := partial.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	v.sync.FetchSiteDetail(ctx, projectID, partial, v.handleSite)
	return partial.ID, nil
}

func (v *ViewportService) classifyAndFetch(ctx context.Context, p domain.GeoPoint) PanOutcome {
	crossing, ok := v.tracker.Classify(p)
	if ok && crossing == domain.Inside {
		return PanOutcome{Crossing: domain.Inside}
	}
	v.logger.Debug("viewport left committed window", "crossing", crossing.String())
	v.mu.Lock()
	v.initialFetched = true
	v.mu.Unlock()
	w := v.commitAndFetch(ctx, p)
	return PanOutcome{Crossing: crossing, Fetched: true, Window: &w}
}

func (v *ViewportService) commitAndFetch(ctx context.Context, focus domain.GeoPoint) domain.Window {
	w := v.tracker.Commit(focus)
	v.sync.FetchSitesInWindow(ctx, w, v.handleSites)
	return w
}

// handleSites runs on the dispatcher.
func (v *ViewportService) handleSites(res SitesResult) {
	if res.ErrMessage != "" {
		v.logger.Warn("site fetch reported an error", "error", res.ErrMessage)
		return
	}
	added := v.addDisplayed(res.Sites, false)
	if len(added) == 0 {
		return
	}
	v.logger.Info("new sites displayed", "new", len(added), "received", len(res.Sites), "source", string(res.Source))
	if v.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := v.publisher.PublishSitesDiscovered(ctx, added); err != nil {
			v.logger.Warn("publish sites discovered", "error", err)
		}
	}
}

// handleSite runs on the dispatcher.
func (v *ViewportService) handleSite(res SiteResult) {
	if res.ErrMessage != "" {
		v.logger.Warn("site detail reported an error", "project", res.ProjectID, "site", res.Site.ID, "error", res.ErrMessage)
	}
	v.addDisplayed([]domain.Site{res.Site}, true)
	if v.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := v.publisher.PublishSiteAttached(ctx, res.ProjectID, res.Site); err != nil {
			v.logger.Warn("publish site attached", "error", err)
		}
	}
}

// addDisplayed appends the sites whose IDs are not displayed yet. With
// replace set, a displayed site with the same ID is swapped for the new one.
func (v *ViewportService) addDisplayed(sites []domain.Site, replace bool) []domain.Site {
	cur := v.displayed.Load()
	next := &siteSet{
		list:  append([]domain.Site(nil), cur.list...),
		index: make(map[string]struct{}, len(cur.index)+len(sites)),
	}
	for id := range cur.index {
		next.index[id] = struct{}{}
	}
	var added []domain.Site
	for _, s := range sites {
		if _, ok := next.index[s.ID]; ok {
			if replace {
				for i := range next.list {
					if next.list[i].ID == s.ID {
						next.list[i] = s
					}
				}
			}
			continue
		}
		next.index[s.ID] = struct{}{}
		next.list = append(next.list, s)
		added = append(added, s)
	}
	if len(added) > 0 || replace {
		v.displayed.Store(next)
	}
	return added
}
