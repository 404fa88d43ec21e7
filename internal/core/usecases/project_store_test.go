package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

func newSample(siteID string) domain.Sample {
	return domain.Sample{
		SiteID:      siteID,
		Type:        domain.SampleLake,
		Phase:       domain.PhaseLiquid,
		CollectedAt: time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC),
	}
}

func TestProjectStore_CreateGeneratesID(t *testing.T) {
	s := usecases.NewProjectStore(newMemBlobStore(), "projects", nil)

	p, err := s.Create(domain.Project{Name: "Wasatch springs"})
	require.NoError(t, err)
	_, err = uuid.Parse(p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, p.SampleIDPrefix)
	require.False(t, p.CreatedAt.IsZero())
}

func TestProjectStore_CreateValidation(t *testing.T) {
	s := usecases.NewProjectStore(newMemBlobStore(), "projects", nil)

	_, err := s.Create(domain.Project{ID: "P"})
	require.ErrorIs(t, err, usecases.ErrInvalidInput)

	_, err = s.Create(domain.Project{ID: "P", Name: "one"})
	require.NoError(t, err)
	_, err = s.Create(domain.Project{ID: "P", Name: "two"})
	require.ErrorIs(t, err, usecases.ErrProjectExists)
}

func TestProjectStore_MergeSiteAndSamples(t *testing.T) {
	s := usecases.NewProjectStore(newMemBlobStore(), "projects", nil)
	_, err := s.Create(domain.Project{ID: "P", Name: "p", SampleIDPrefix: "UT"})
	require.NoError(t, err)

	_, err = s.MergeSite("P", site("s1", 40, -111))
	require.NoError(t, err)
	renamed := site("s1", 40, -111)
	renamed.Name = "renamed"
	_, err = s.MergeSite("P", renamed)
	require.NoError(t, err)

	first, err := s.AddSample("P", newSample("s1"))
	require.NoError(t, err)
	require.Equal(t, "UT-1", first.ID)
	second, err := s.AddSample("P", newSample("s1"))
	require.NoError(t, err)
	require.Equal(t, "UT-2", second.ID)

	_, err = s.AddSample("P", newSample("unknown-site"))
	require.ErrorIs(t, err, usecases.ErrInvalidInput)

	dup := newSample("s1")
	dup.ID = "UT-1"
	_, err = s.AddSample("P", dup)
	require.ErrorIs(t, err, usecases.ErrInvalidInput)

	p, err := s.Get("P")
	require.NoError(t, err)
	require.Len(t, p.Sites, 1)
	require.Equal(t, "renamed", p.Sites[0].Name)
	require.Len(t, p.Samples, 2)

	next, err := s.NextSiteID("P")
	require.NoError(t, err)
	require.Equal(t, "UT-S2", next)
}

func TestProjectStore_ReadersGetCopies(t *testing.T) {
	s := usecases.NewProjectStore(newMemBlobStore(), "projects", nil)
	_, err := s.Create(domain.Project{ID: "P", Name: "p", Sites: []domain.Site{site("s1", 1, 1)}})
	require.NoError(t, err)

	list := s.List()
	list[0].Sites[0].Name = "mutated"

	p, err := s.Get("P")
	require.NoError(t, err)
	require.Equal(t, "Site s1", p.Sites[0].Name)
}

func TestProjectStore_DeleteDiscardsSitesAndSamples(t *testing.T) {
	s := usecases.NewProjectStore(newMemBlobStore(), "projects", nil)
	_, err := s.Create(domain.Project{ID: "P", Name: "p", Sites: []domain.Site{site("s1", 1, 1)}})
	require.NoError(t, err)

	require.NoError(t, s.Delete("P"))
	require.ErrorIs(t, s.Delete("P"), usecases.ErrProjectNotFound)
	_, err = s.Get("P")
	require.ErrorIs(t, err, usecases.ErrProjectNotFound)
	require.Empty(t, s.Sites())
}

func TestProjectStore_SaveLoadIncludingEmpty(t *testing.T) {
	store := newMemBlobStore()
	s := usecases.NewProjectStore(store, "projects", nil)
	_, err := s.Create(domain.Project{ID: "P", Name: "p", Sites: []domain.Site{site("s1", 1, 1)}})
	require.NoError(t, err)
	_, err = s.AddSample("P", newSample("s1"))
	require.NoError(t, err)
	require.Equal(t, usecases.OutcomeSaved, s.Save(context.Background()))

	loaded := usecases.NewProjectStore(store, "projects", nil)
	require.Equal(t, usecases.OutcomeLoaded, loaded.Load(context.Background()))
	got, err := loaded.Get("P")
	require.NoError(t, err)
	want, _ := s.Get("P")
	require.Equal(t, want.Sites, got.Sites)
	require.Len(t, got.Samples, 1)
	require.True(t, want.Samples[0].CollectedAt.Equal(got.Samples[0].CollectedAt))

	// Deleting the last project is persisted too.
	require.NoError(t, s.Delete("P"))
	require.Equal(t, usecases.OutcomeSaved, s.Save(context.Background()))
	require.Equal(t, usecases.OutcomeLoaded, loaded.Load(context.Background()))
	require.Empty(t, loaded.List())
}

func TestProjectStore_CorruptLoadKeepsMemory(t *testing.T) {
	store := newMemBlobStore()
	s := usecases.NewProjectStore(store, "projects", nil)
	_, err := s.Create(domain.Project{ID: "P", Name: "p"})
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "projects", []byte(`{"projects":[{"id":"A"},{"id":"A"}]}`)))
	require.Equal(t, usecases.OutcomeFailed, s.Load(context.Background()))
	require.Len(t, s.List(), 1)
}
