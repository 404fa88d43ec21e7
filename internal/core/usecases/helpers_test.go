package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

// --- Mock SiteSource ---

type mockSource struct {
	sitesInWindowFn func(ctx context.Context, w *domain.Window) ([]domain.Site, error)
	siteDetailFn    func(ctx context.Context, id string) (*domain.Site, error)

	mu    sync.Mutex
	calls int
}

func (m *mockSource) SitesInWindow(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.sitesInWindowFn != nil {
		return m.sitesInWindowFn(ctx, w)
	}
	return nil, nil
}

func (m *mockSource) SiteDetail(ctx context.Context, id string) (*domain.Site, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.siteDetailFn != nil {
		return m.siteDetailFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Mock ConnectivityProbe ---

type staticProbe bool

func (p staticProbe) IsOnline(context.Context) bool { return bool(p) }

// --- In-memory BlobStore ---

type memBlobStore struct {
	putFn func(ctx context.Context, name string, data []byte) error

	mu    sync.Mutex
	blobs map[string][]byte
	puts  int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, ports.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memBlobStore) Put(ctx context.Context, name string, data []byte) error {
	if m.putFn != nil {
		if err := m.putFn(ctx, name, data); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu         sync.Mutex
	discovered [][]domain.Site
	attached   []domain.Site
}

func (m *mockPublisher) PublishSitesDiscovered(_ context.Context, sites []domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered = append(m.discovered, sites)
	return nil
}

func (m *mockPublisher) PublishSiteAttached(_ context.Context, _ string, site domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = append(m.attached, site)
	return nil
}

func (m *mockPublisher) Discovered() [][]domain.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.Site(nil), m.discovered...)
}

// --- helpers ---

func startDispatcher(t *testing.T) *usecases.Dispatcher {
	t.Helper()
	d := usecases.NewDispatcher(16)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	return d
}

// drain waits until everything posted to d so far has run.
func drain(t *testing.T, d *usecases.Dispatcher) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, d.Post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}

type fixture struct {
	source     *mockSource
	store      *memBlobStore
	cache      *usecases.SiteCache
	projects   *usecases.ProjectStore
	dispatcher *usecases.Dispatcher
	syncer     *usecases.SiteSynchronizer
}

func newFixture(t *testing.T, online bool, source *mockSource) *fixture {
	t.Helper()
	if source == nil {
		source = &mockSource{}
	}
	f := &fixture{source: source, store: newMemBlobStore()}
	f.cache = usecases.NewSiteCache(f.store, "cachedSites", nil)
	f.projects = usecases.NewProjectStore(f.store, "projects", nil)
	f.dispatcher = startDispatcher(t)
	f.syncer = usecases.NewSiteSynchronizer(source, staticProbe(online), f.cache, f.projects, f.dispatcher, nil)
	t.Cleanup(f.syncer.Close)
	return f
}

// settle waits for every issued fetch and its delivery.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	f.syncer.Wait()
	drain(t, f.dispatcher)
}

func site(id string, lat, lon float64) domain.Site {
	return domain.Site{ID: id, Name: "Site " + id, Location: domain.GeoPoint{Lat: lat, Lon: lon}}
}

func ids(sites []domain.Site) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		out[i] = s.ID
	}
	return out
}
