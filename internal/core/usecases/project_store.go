package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
)

type projectsBlob struct {
	Projects []domain.Project `json:"projects"`
}

// ProjectStore owns the active project collection. Every mutation publishes
// a new slice; readers never observe a half-applied change.
type ProjectStore struct {
	store  ports.BlobStore
	name   string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	projects atomic.Pointer[[]domain.Project]
	save     atomic.Bool
	load     atomic.Bool
}

// NewProjectStore creates an empty store persisted under blob name.
func NewProjectStore(store ports.BlobStore, name string, logger *slog.Logger) *ProjectStore {
	s := &ProjectStore{store: store, name: name, logger: loggerOrDefault(logger), now: time.Now}
	empty := []domain.Project{}
	s.projects.Store(&empty)
	return s
}

func (s *ProjectStore) snapshot() []domain.Project {
	return *s.projects.Load()
}

func indexOf(projects []domain.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}

// List returns copies of all projects in creation order.
func (s *ProjectStore) List() []domain.Project {
	cur := s.snapshot()
	out := make([]domain.Project, len(cur))
	for i, p := range cur {
		out[i] = p.Clone()
	}
	return out
}

// Get returns a copy of one project.
func (s *ProjectStore) Get(id string) (domain.Project, error) {
	cur := s.snapshot()
	i := indexOf(cur, id)
	if i < 0 {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return cur[i].Clone(), nil
}

// Sites returns every site owned by any project.
func (s *ProjectStore) Sites() []domain.Site {
	var out []domain.Site
	for _, p := range s.snapshot() {
		out = append(out, p.Sites...)
	}
	return out
}

// Create adds a project. A missing ID is generated; the sample ID prefix
// defaults to the project ID.
func (s *ProjectStore) Create(p domain.Project) (domain.Project, error) {
	if strings.TrimSpace(p.Name) == "" {
		return domain.Project{}, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SampleIDPrefix == "" {
		p.SampleIDPrefix = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	for _, site := range p.Sites {
		if err := site.Validate(); err != nil {
			return domain.Project{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	p = p.Clone()
	if p.Sites == nil {
		p.Sites = []domain.Site{}
	}

	err := s.mutate(func(cur []domain.Project) ([]domain.Project, error) {
		if indexOf(cur, p.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrProjectExists, p.ID)
		}
		return append(cur[:len(cur):len(cur)], p), nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p.Clone(), nil
}

// Delete removes a project together with its sites and samples.
func (s *ProjectStore) Delete(id string) error {
	return s.mutate(func(cur []domain.Project) ([]domain.Project, error) {
		i := indexOf(cur, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return append(cur[:i:i], cur[i+1:]...), nil
	})
}

// MergeSite replaces the project's site with the same ID, or appends it.
func (s *ProjectStore) MergeSite(projectID string, site domain.Site) (domain.Site, error) {
	if err := site.Validate(); err != nil {
		return domain.Site{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	err := s.update(projectID, func(p *domain.Project) error {
		if i := p.SiteIndex(site.ID); i >= 0 {
			p.Sites[i] = site
			return nil
		}
		p.Sites = append(p.Sites, site)
		return nil
	})
	return site, err
}

// AddSample appends a sample to a project, generating its ID when empty.
// The sample's site must belong to the project.
func (s *ProjectStore) AddSample(projectID string, sample domain.Sample) (domain.Sample, error) {
	if err := sample.Validate(); err != nil {
		return domain.Sample{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	err := s.update(projectID, func(p *domain.Project) error {
		if p.SiteIndex(sample.SiteID) < 0 {
			return fmt.Errorf("%w: site %s is not part of project %s", ErrInvalidInput, sample.SiteID, p.ID)
		}
		if sample.ID == "" {
			sample.ID = p.NextSampleID()
		}
		for _, existing := range p.Samples {
			if existing.ID == sample.ID {
				return fmt.Errorf("%w: sample %s already exists", ErrInvalidInput, sample.ID)
			}
		}
		p.Samples = append(p.Samples, sample)
		return nil
	})
	return sample, err
}

// NextSiteID returns the next free locally generated site ID for a project.
func (s *ProjectStore) NextSiteID(projectID string) (string, error) {
	p, err := s.Get(projectID)
	if err != nil {
		return "", err
	}
	return p.NextSiteID(), nil
}

func (s *ProjectStore) update(projectID string, fn func(p *domain.Project) error) error {
	return s.mutate(func(cur []domain.Project) ([]domain.Project, error) {
		i := indexOf(cur, projectID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		p := cur[i].Clone()
		if err := fn(&p); err != nil {
			return nil, err
		}
		next := append([]domain.Project(nil), cur...)
		next[i] = p
		return next, nil
	})
}

// mutate applies fn to the current collection and publishes the result.
// fn must not modify cur in place.
func (s *ProjectStore) mutate(fn func(cur []domain.Project) ([]domain.Project, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.snapshot())
	if err != nil {
		return err
	}
	s.projects.Store(&next)
	return nil
}

// Save persists the whole collection. Unlike the site cache an empty
// collection is written, since deleting the last project is a real state.
func (s *ProjectStore) Save(ctx context.Context) Outcome {
	if !s.save.CompareAndSwap(false, true) {
		return recordOutcome(s.logger, s.name, "save", OutcomeBusy, nil)
	}
	defer s.save.Store(false)

	data, err := json.Marshal(projectsBlob{Projects: s.snapshot()})
	if err != nil {
		return recordOutcome(s.logger, s.name, "save", OutcomeFailed, fmt.Errorf("encode projects: %w", err))
	}
	if err := s.store.Put(ctx, s.name, data); err != nil {
		return recordOutcome(s.logger, s.name, "save", OutcomeFailed, err)
	}
	return recordOutcome(s.logger, s.name, "save", OutcomeSaved, nil)
}

// Load replaces the collection with the persisted one; failures leave it unchanged.
func (s *ProjectStore) Load(ctx context.Context) Outcome {
	if !s.load.CompareAndSwap(false, true) {
		return recordOutcome(s.logger, s.name, "load", OutcomeBusy, nil)
	}
	defer s.load.Store(false)

	data, err := s.store.Get(ctx, s.name)
	if errors.Is(err, ports.ErrBlobNotFound) {
		return recordOutcome(s.logger, s.name, "load", OutcomeMissing, nil)
	}
	if err != nil {
		return recordOutcome(s.logger, s.name, "load", OutcomeFailed, err)
	}
	var blob projectsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return recordOutcome(s.logger, s.name, "load", OutcomeFailed, fmt.Errorf("decode projects: %w", err))
	}
	seen := make(map[string]struct{}, len(blob.Projects))
	for _, p := range blob.Projects {
		if _, dup := seen[p.ID]; dup || p.ID == "" {
			return recordOutcome(s.logger, s.name, "load", OutcomeFailed,
				fmt.Errorf("decode projects: missing or duplicate project id %q", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	next := blob.Projects
	if next == nil {
		next = []domain.Project{}
	}

	s.mu.Lock()
	s.projects.Store(&next)
	s.mu.Unlock()
	return recordOutcome(s.logger, s.name, "load", OutcomeLoaded, nil)
}
