package geospatial

import (
	"math"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

const (
	// windowEarthRadiusKm is the equatorial radius used for window sizing.
	windowEarthRadiusKm = 6378.0

	// MinCosLatitude floors cos(lat) so the longitude delta stays finite at the poles.
	MinCosLatitude = 1e-6

	maxLonDelta = 180.0
)

// DeltaDegrees converts a half-width in kilometres to degrees of latitude.
func DeltaDegrees(halfWidthKm float64) float64 {
	return halfWidthKm / windowEarthRadiusKm * 180 / math.Pi
}

// ComputeWindow returns the window centered on focus. The latitude extent is
// symmetric and never clamped; the longitude extent is widened by 1/cos(lat).
// Once that reaches 180 degrees the window spans every longitude. Otherwise
// the longitude bounds are clamped to [-180, 180]; windows do not wrap the
// antimeridian.
func ComputeWindow(focus domain.GeoPoint, halfWidthKm float64) domain.Window {
	d := DeltaDegrees(halfWidthKm)
	lonDelta := d / math.Max(math.Cos(toRad(focus.Lat)), MinCosLatitude)
	minLon, maxLon := -maxLonDelta, maxLonDelta
	if lonDelta < maxLonDelta {
		minLon = math.Max(focus.Lon-lonDelta, -maxLonDelta)
		maxLon = math.Min(focus.Lon+lonDelta, maxLonDelta)
	}
	return domain.Window{
		Min:    domain.GeoPoint{Lat: focus.Lat - d, Lon: minLon},
		Max:    domain.GeoPoint{Lat: focus.Lat + d, Lon: maxLon},
		Center: focus,
	}
}

// Classify reports where p lies relative to w. The first failing test wins,
// in the order below, above, left, right.
func Classify(p domain.GeoPoint, w domain.Window) domain.Crossing {
	switch {
	case p.Lat < w.Min.Lat:
		return domain.Below
	case p.Lat > w.Max.Lat:
		return domain.Above
	case p.Lon < w.Min.Lon:
		return domain.LeftOf
	case p.Lon > w.Max.Lon:
		return domain.RightOf
	default:
		return domain.Inside
	}
}
