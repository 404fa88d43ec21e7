package wateriso_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/adapters/wateriso"
	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
)

func newServer(t *testing.T, handler http.HandlerFunc) *wateriso.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return wateriso.NewClient(wateriso.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestClient_SitesInWindowBody(t *testing.T) {
	var got map[string]any
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, wateriso.DefaultSitesPath, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"sites":[{"Site_ID":"A1","Site_Name":"Jordan River","Latitude":40.5,"Longitude":-111.9}]}`))
	})

	win := domain.Window{
		Min: domain.GeoPoint{Lat: 40, Lon: -112},
		Max: domain.GeoPoint{Lat: 41, Lon: -111},
	}
	sites, err := client.SitesInWindow(context.Background(), &win)
	require.NoError(t, err)
	require.Equal(t, []domain.Site{{ID: "A1", Name: "Jordan River", Location: domain.GeoPoint{Lat: 40.5, Lon: -111.9}}}, sites)

	require.Equal(t, map[string]any{"Min": 40.0, "Max": 41.0}, got["latitude"])
	require.Equal(t, map[string]any{"Min": -112.0, "Max": -111.0}, got["longitude"])
}

func TestClient_AllSitesSendsNullFilters(t *testing.T) {
	var got map[string]any
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"sites":[]}`))
	})

	sites, err := client.SitesInWindow(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, sites)

	for _, key := range []string{"latitude", "longitude", "elevation", "countries", "states",
		"collection_date", "types", "h2", "o18", "project_ids"} {
		v, ok := got[key]
		require.True(t, ok, key)
		require.Nil(t, v, key)
	}
}

func TestClient_SiteDetail(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, wateriso.DefaultSiteInfoPath, r.URL.Path)
		var q map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		require.Equal(t, "A1", q["site_id"])
		_, _ = w.Write([]byte(`{"status":{"Code":0},"site":{"Site_ID":"A1","Site_Name":"Jordan River",
			"Latitude":"40.5","Longitude":-111.9,"Elevation_mabsl":-9999,"City":"Salt Lake City","Country":"US"}}`))
	})

	s, err := client.SiteDetail(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, "A1", s.ID)
	require.Equal(t, 40.5, s.Location.Lat)
	require.False(t, s.Elevation.Valid)
	require.Equal(t, "Salt Lake City", s.City)
	require.Empty(t, s.Address)
}

func TestClient_HTTPErrorIsTransportError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.SitesInWindow(context.Background(), nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ports.ErrMalformedResponse)
	require.Contains(t, err.Error(), "HTTP 502")
}

func TestClient_CancelledContext(t *testing.T) {
	block := make(chan struct{})
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.SitesInWindow(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeSites_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"sites":`},
		{"missing sites", `{"results":[]}`},
		{"sites not array", `{"sites":{}}`},
		{"entry not object", `{"sites":[1]}`},
		{"missing id", `{"sites":[{"Latitude":1,"Longitude":1}]}`},
		{"numeric id", `{"sites":[{"Site_ID":5,"Latitude":1,"Longitude":1}]}`},
		{"missing latitude", `{"sites":[{"Site_ID":"a","Longitude":1}]}`},
		{"bad longitude", `{"sites":[{"Site_ID":"a","Latitude":1,"Longitude":"east"}]}`},
		{"out of range", `{"sites":[{"Site_ID":"a","Latitude":91,"Longitude":1}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := wateriso.DecodeSites([]byte(tc.body))
			require.ErrorIs(t, err, ports.ErrMalformedResponse)
		})
	}
}

func TestDecodeSites_OptionalName(t *testing.T) {
	sites, err := wateriso.DecodeSites([]byte(`{"sites":[{"Site_ID":"a","Latitude":1,"Longitude":2}]}`))
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Empty(t, sites[0].Name)
}

func TestDecodeSiteDetail_MissingSite(t *testing.T) {
	_, status, err := wateriso.DecodeSiteDetail([]byte(`{"status":{"Code":404}}`))
	require.ErrorIs(t, err, ports.ErrMalformedResponse)
	require.Equal(t, "404", status)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	url := srv.URL

	require.True(t, wateriso.NewProbe(url, time.Second).IsOnline(context.Background()))

	srv.Close()
	require.False(t, wateriso.NewProbe(url, time.Second).IsOnline(context.Background()))

	require.False(t, wateriso.StaticProbe(false).IsOnline(context.Background()))
	require.True(t, wateriso.StaticProbe(true).IsOnline(context.Background()))
}
