package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
)

func TestParseSites_RemoteDump(t *testing.T) {
	sites, err := parseSites([]byte(`{"sites":[{"Site_ID":"A1","Site_Name":"Spring","Latitude":40.5,"Longitude":-111.9}]}`))
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "A1", sites[0].ID)
	require.Equal(t, domain.GeoPoint{Lat: 40.5, Lon: -111.9}, sites[0].Location)
}

func TestParseSites_RemoteDumpMalformed(t *testing.T) {
	_, err := parseSites([]byte(`{"sites":[{"Site_ID":"A1","Latitude":"north","Longitude":-111.9}]}`))
	require.ErrorIs(t, err, ports.ErrMalformedResponse)
}

func TestParseSites_CacheBlob(t *testing.T) {
	sites, err := parseSites([]byte(`{"sites":[{"id":"B","name":"Well","location":{"lat":1,"lon":2},"elevation":null}]}`))
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "B", sites[0].ID)
	require.False(t, sites[0].Elevation.Valid)

	_, err = parseSites([]byte(`{"sites":[{"id":"","location":{"lat":1,"lon":2}}]}`))
	require.ErrorIs(t, err, domain.ErrInvalid)
}

func TestParseSites_EmptyAndInvalid(t *testing.T) {
	sites, err := parseSites([]byte(`{"sites":[]}`))
	require.NoError(t, err)
	require.Empty(t, sites)

	_, err = parseSites([]byte(`{"sites":{}}`))
	require.Error(t, err)

	_, err = parseSites([]byte(`not json`))
	require.Error(t, err)
}
