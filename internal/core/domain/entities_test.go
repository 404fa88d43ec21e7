package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

func TestNextSampleID_SkipsCollisions(t *testing.T) {
	p := domain.Project{
		ID:             "P1",
		SampleIDPrefix: "UT",
		Samples: []domain.Sample{
			{ID: "UT-2"},
			{ID: "UT-3"},
		},
	}
	require.Equal(t, "UT-4", p.NextSampleID())

	p.Samples = []domain.Sample{{ID: "other"}}
	require.Equal(t, "UT-2", p.NextSampleID())
}

func TestNextSiteID_FallsBackToProjectID(t *testing.T) {
	p := domain.Project{ID: "P1", Sites: []domain.Site{{ID: "P1-S2"}}}
	require.Equal(t, "P1-S3", p.NextSiteID())

	p.Sites = nil
	require.Equal(t, "P1-S1", p.NextSiteID())
}

func TestSiteValidate(t *testing.T) {
	tests := []struct {
		name    string
		site    domain.Site
		wantErr bool
	}{
		{"valid", domain.Site{ID: "a", Location: domain.GeoPoint{Lat: 40.7, Lon: -111.8}}, false},
		{"empty id", domain.Site{Location: domain.GeoPoint{Lat: 1, Lon: 1}}, true},
		{"lat out of range", domain.Site{ID: "a", Location: domain.GeoPoint{Lat: 91}}, true},
		{"lon out of range", domain.Site{ID: "a", Location: domain.GeoPoint{Lon: -181}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.site.Validate()
			if tc.wantErr {
				require.True(t, errors.Is(err, domain.ErrInvalid))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMeasureJSON(t *testing.T) {
	var s domain.Site
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","elevation":-9999}`), &s))
	require.False(t, s.Elevation.Valid)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","elevation":1320.5}`), &s))
	require.Equal(t, domain.Some(1320.5), s.Elevation)

	out, err := json.Marshal(domain.Measure{})
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
	require.Equal(t, domain.UnsetSentinel, domain.Measure{}.Sentinel())
	require.Equal(t, "", domain.Measure{}.Format())
	require.Equal(t, "2.5", domain.Some(2.5).Format())
}

func TestStartTimeFromLegacy(t *testing.T) {
	require.Nil(t, domain.StartTimeFromLegacy(domain.NotApplicableTime))
	require.Nil(t, domain.StartTimeFromLegacy(time.Time{}))

	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	got := domain.StartTimeFromLegacy(ts)
	require.NotNil(t, got)
	require.True(t, got.Equal(ts))
}

func TestSampleTypeText(t *testing.T) {
	st, err := domain.ParseSampleType("river_or_stream")
	require.NoError(t, err)
	require.Equal(t, domain.SampleRiverOrStream, st)
	require.Equal(t, "River_or_stream", st.String())

	_, err = domain.ParseSampleType("puddle")
	require.ErrorIs(t, err, domain.ErrInvalid)

	ph, err := domain.ParsePhase("Mixed")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseMixed, ph)
}

func TestProjectCloneIsDeep(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := domain.Project{
		ID:      "P",
		Sites:   []domain.Site{{ID: "s"}},
		Samples: []domain.Sample{{ID: "x", StartedAt: &start}},
	}
	c := p.Clone()
	c.Sites[0].Name = "changed"
	*c.Samples[0].StartedAt = start.Add(time.Hour)

	require.Empty(t, p.Sites[0].Name)
	require.True(t, p.Samples[0].StartedAt.Equal(start))
}

func TestWindowContainsInclusive(t *testing.T) {
	w := domain.Window{Min: domain.GeoPoint{Lat: 0, Lon: 0}, Max: domain.GeoPoint{Lat: 1, Lon: 1}}
	require.True(t, w.Contains(domain.GeoPoint{Lat: 0, Lon: 1}))
	require.True(t, w.Contains(domain.GeoPoint{Lat: 1, Lon: 0}))
	require.False(t, w.Contains(domain.GeoPoint{Lat: 1.0001, Lon: 0.5}))
}

func TestSampleJSON_LegacyStartTime(t *testing.T) {
	var s domain.Sample
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","started_at":"4001-01-01T00:00:00Z"}`), &s))
	require.Nil(t, s.StartedAt)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","started_at":"2024-05-01T09:30:00Z"}`), &s))
	require.NotNil(t, s.StartedAt)
	require.Equal(t, 2024, s.StartedAt.Year())
}
