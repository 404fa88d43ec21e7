package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within the legal latitude/longitude ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Window is a latitude/longitude rectangle plus the focal point it was
// centered on when it was computed. Windows are values: a new one replaces
// the old, nothing mutates one in place.
type Window struct {
	Min    GeoPoint `json:"min"`
	Max    GeoPoint `json:"max"`
	Center GeoPoint `json:"center"`
}

// Contains reports whether p lies inside w. Both bounds are inclusive on both
// axes, so a point sitting exactly on an edge is inside.
func (w Window) Contains(p GeoPoint) bool {
	return p.Lat >= w.Min.Lat && p.Lat <= w.Max.Lat &&
		p.Lon >= w.Min.Lon && p.Lon <= w.Max.Lon
}

// Crossing classifies a point relative to a window.
type Crossing int

const (
	Inside Crossing = iota
	Below
	Above
	LeftOf
	RightOf
)

func (c Crossing) String() string {
	switch c {
	case Inside:
		return "within window"
	case Below:
		return "below window"
	case Above:
		return "above window"
	case LeftOf:
		return "left of window"
	case RightOf:
		return "right of window"
	default:
		return "unknown"
	}
}
