package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

type sitesRecorder struct {
	mu      sync.Mutex
	results []usecases.SitesResult
}

func (r *sitesRecorder) record(res usecases.SitesResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *sitesRecorder) all() []usecases.SitesResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usecases.SitesResult(nil), r.results...)
}

var testWindow = domain.Window{
	Min:    domain.GeoPoint{Lat: 40, Lon: -112},
	Max:    domain.GeoPoint{Lat: 41, Lon: -111},
	Center: domain.GeoPoint{Lat: 40.5, Lon: -111.5},
}

func TestSiteSync_OfflineScansCacheInclusively(t *testing.T) {
	source := &mockSource{}
	f := newFixture(t, false, source)
	f.cache.Merge([]domain.Site{
		site("inside", 40.5, -111.5),
		site("corner", testWindow.Max.Lat, testWindow.Min.Lon),
		site("outside", 42, -111.5),
	})

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.settle(t)

	results := rec.all()
	require.Len(t, results, 1)
	require.Equal(t, usecases.SourceCache, results[0].Source)
	require.Empty(t, results[0].ErrMessage)
	require.ElementsMatch(t, []string{"inside", "corner"}, ids(results[0].Sites))
	require.Zero(t, source.Calls(), "offline fetch must not touch the transport")
}

func TestSiteSync_OnlineMergesIntoCache(t *testing.T) {
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			require.NotNil(t, w)
			require.Equal(t, testWindow, *w)
			return []domain.Site{site("a", 40.1, -111.1), site("b", 40.2, -111.2)}, nil
		},
	}
	f := newFixture(t, true, source)
	f.cache.Merge([]domain.Site{site("a", 40.1, -111.1)})

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.settle(t)

	results := rec.all()
	require.Len(t, results, 1)
	require.Equal(t, usecases.SourceRemote, results[0].Source)
	require.Equal(t, []string{"a", "b"}, ids(results[0].Sites))
	require.Equal(t, []string{"a", "b"}, ids(f.cache.Sites()))
}

func TestSiteSync_PreemptedRequestNeverDelivers(t *testing.T) {
	windowA := testWindow
	windowB := testWindow
	windowB.Center = domain.GeoPoint{Lat: 40.6, Lon: -111.4}

	releaseA := make(chan struct{})
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			if w.Center == windowA.Center {
				// Completes successfully even though it was cancelled.
				<-releaseA
				return []domain.Site{site("from-a", 40.1, -111.1)}, nil
			}
			return []domain.Site{site("from-b", 40.2, -111.2)}, nil
		},
	}
	f := newFixture(t, true, source)

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), windowA, rec.record)
	f.syncer.FetchSitesInWindow(context.Background(), windowB, rec.record)
	close(releaseA)
	f.settle(t)

	results := rec.all()
	require.Len(t, results, 1)
	require.Equal(t, windowB, *results[0].Window)
	require.Equal(t, []string{"from-b"}, ids(results[0].Sites))
	require.False(t, f.cache.Contains("from-a"))
}

func TestSiteSync_SupersededResponseNeverMergesLate(t *testing.T) {
	windowB := testWindow
	windowB.Center = domain.GeoPoint{Lat: 40.6, Lon: -111.4}

	for i := 0; i < 200; i++ {
		var (
			f          *fixture
			cachedAtB  bool
			sourceOnce sync.Once
		)
		source := &mockSource{
			sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
				if w.Center == windowB.Center {
					sourceOnce.Do(func() { cachedAtB = f.cache.Contains("from-a") })
					return []domain.Site{site("from-b", 40.2, -111.2)}, nil
				}
				return []domain.Site{site("from-a", 40.1, -111.1)}, nil
			},
		}
		f = newFixture(t, true, source)

		rec := &sitesRecorder{}
		f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
		f.syncer.FetchSitesInWindow(context.Background(), windowB, rec.record)
		f.settle(t)

		// A merge is only allowed before the newer request began, which is
		// before its source call.
		if f.cache.Contains("from-a") {
			require.True(t, cachedAtB, "iteration %d: stale sites merged after a newer request began", i)
		}
		require.True(t, f.cache.Contains("from-b"))
	}
}

func TestSiteSync_PreemptionCancelsContext(t *testing.T) {
	cancelled := make(chan struct{})
	var once sync.Once
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			if w == nil {
				<-ctx.Done()
				once.Do(func() { close(cancelled) })
				return nil, ctx.Err()
			}
			return nil, nil
		},
	}
	f := newFixture(t, true, source)

	rec := &sitesRecorder{}
	f.syncer.FetchAllSites(context.Background(), rec.record)
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.settle(t)

	<-cancelled
	results := rec.all()
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Window)
	require.Empty(t, results[0].ErrMessage)
}

func TestSiteSync_TransportErrorIsReported(t *testing.T) {
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			return nil, errors.New("connection refused")
		},
	}
	f := newFixture(t, true, source)

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.settle(t)

	results := rec.all()
	require.Len(t, results, 1)
	require.Contains(t, results[0].ErrMessage, "connection refused")
	require.Empty(t, results[0].Sites)
}

func TestSiteSync_MalformedResponseDeliversNothing(t *testing.T) {
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			return nil, fmt.Errorf("decode sites: %w: sites is not an array", ports.ErrMalformedResponse)
		},
	}
	f := newFixture(t, true, source)

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.settle(t)

	require.Empty(t, rec.all())
	require.Zero(t, f.cache.Len())
}

func TestSiteSync_NoDeliveryAfterClose(t *testing.T) {
	source := &mockSource{
		sitesInWindowFn: func(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
			<-ctx.Done()
			return []domain.Site{site("late", 40.1, -111.1)}, nil
		},
	}
	f := newFixture(t, true, source)

	rec := &sitesRecorder{}
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	f.syncer.Close()
	drain(t, f.dispatcher)

	require.Empty(t, rec.all())

	// Further requests are ignored.
	f.syncer.FetchSitesInWindow(context.Background(), testWindow, rec.record)
	drain(t, f.dispatcher)
	require.Empty(t, rec.all())
}

func detailFixture(t *testing.T, online bool, source *mockSource) (*fixture, string) {
	t.Helper()
	f := newFixture(t, online, source)
	p, err := f.projects.Create(domain.Project{ID: "UT", Name: "Utah lakes"})
	require.NoError(t, err)
	return f, p.ID
}

func TestSiteSync_DetailOfflineMergesPartial(t *testing.T) {
	source := &mockSource{}
	f, projectID := detailFixture(t, false, source)

	var got []usecases.SiteResult
	partial := site("UT-S1", 40.1, -111.1)
	f.syncer.FetchSiteDetail(context.Background(), projectID, partial, func(r usecases.SiteResult) { got = append(got, r) })
	f.settle(t)

	require.Len(t, got, 1)
	require.Equal(t, usecases.SourcePartial, got[0].Source)
	require.Equal(t, partial, got[0].Site)
	require.Zero(t, source.Calls())

	p, err := f.projects.Get(projectID)
	require.NoError(t, err)
	require.Equal(t, []domain.Site{partial}, p.Sites)
}

func TestSiteSync_DetailOnlineReplacesExisting(t *testing.T) {
	detail := site("X1", 40.1, -111.1)
	detail.Name = "Great Salt Lake"
	detail.Elevation = domain.Some(1280)
	source := &mockSource{
		siteDetailFn: func(ctx context.Context, id string) (*domain.Site, error) {
			require.Equal(t, "X1", id)
			d := detail
			return &d, nil
		},
	}
	f, projectID := detailFixture(t, true, source)
	_, err := f.projects.MergeSite(projectID, site("X1", 40.1, -111.1))
	require.NoError(t, err)

	var got []usecases.SiteResult
	f.syncer.FetchSiteDetail(context.Background(), projectID, site("X1", 40.1, -111.1), func(r usecases.SiteResult) { got = append(got, r) })
	f.settle(t)

	require.Len(t, got, 1)
	require.Equal(t, usecases.SourceRemote, got[0].Source)

	p, err := f.projects.Get(projectID)
	require.NoError(t, err)
	require.Len(t, p.Sites, 1)
	require.Equal(t, "Great Salt Lake", p.Sites[0].Name)
	require.Equal(t, domain.Some(1280), p.Sites[0].Elevation)
}

func TestSiteSync_DetailFailureFallsBackToPartial(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg bool
	}{
		{"transport", errors.New("timeout"), true},
		{"malformed", fmt.Errorf("%w: site missing", ports.ErrMalformedResponse), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source := &mockSource{
				siteDetailFn: func(ctx context.Context, id string) (*domain.Site, error) {
					return nil, tc.err
				},
			}
			f, projectID := detailFixture(t, true, source)

			var got []usecases.SiteResult
			partial := site("new", 40.1, -111.1)
			f.syncer.FetchSiteDetail(context.Background(), projectID, partial, func(r usecases.SiteResult) { got = append(got, r) })
			f.settle(t)

			require.Len(t, got, 1)
			require.Equal(t, partial, got[0].Site)
			require.Equal(t, tc.wantMsg, got[0].ErrMessage != "")

			p, err := f.projects.Get(projectID)
			require.NoError(t, err)
			require.Equal(t, []string{"new"}, ids(p.Sites))
		})
	}
}

func TestSiteSync_DetailUnknownProject(t *testing.T) {
	f := newFixture(t, false, nil)

	var got []usecases.SiteResult
	f.syncer.FetchSiteDetail(context.Background(), "missing", site("a", 1, 1), func(r usecases.SiteResult) { got = append(got, r) })
	f.settle(t)

	require.Len(t, got, 1)
	require.Contains(t, got[0].ErrMessage, "project not found")
}
