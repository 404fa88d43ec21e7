package wateriso

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/ports"
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ports.ErrMalformedResponse}, args...)...)
}

// DecodeSites parses a {"sites":[...]} payload. Every entry needs a string
// Site_ID and numeric Latitude and Longitude; a missing Site_Name is empty.
// Any violation rejects the whole payload.
func DecodeSites(raw []byte) ([]domain.Site, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformed("invalid JSON")
	}
	list := gjson.GetBytes(raw, "sites")
	if !list.IsArray() {
		return nil, malformed("sites is not an array")
	}
	entries := list.Array()
	sites := make([]domain.Site, 0, len(entries))
	for i, entry := range entries {
		s, err := decodeSite(entry, fmt.Sprintf("sites.%d", i))
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// DecodeSiteDetail parses a {"status":{...},"site":{...}} payload and also
// returns status.Code as text.
func DecodeSiteDetail(raw []byte) (*domain.Site, string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, "", malformed("invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	status := doc.Get("status.Code").String()
	s, err := decodeSite(doc.Get("site"), "site")
	if err != nil {
		return nil, status, err
	}
	s.Elevation = optionalNumber(doc.Get("site.Elevation_mabsl"))
	s.Address = doc.Get("site.Address").String()
	s.City = doc.Get("site.City").String()
	s.StateOrProvince = doc.Get("site.State_or_Province").String()
	s.Country = doc.Get("site.Country").String()
	s.Comments = doc.Get("site.Site_Comments").String()
	return &s, status, nil
}

func decodeSite(v gjson.Result, path string) (domain.Site, error) {
	if !v.IsObject() {
		return domain.Site{}, malformed("%s is not an object", path)
	}
	id := v.Get("Site_ID")
	if id.Type != gjson.String || id.String() == "" {
		return domain.Site{}, malformed("%s.Site_ID missing", path)
	}
	lat, err := number(v.Get("Latitude"), path+".Latitude")
	if err != nil {
		return domain.Site{}, err
	}
	lon, err := number(v.Get("Longitude"), path+".Longitude")
	if err != nil {
		return domain.Site{}, err
	}
	s := domain.Site{
		ID:       id.String(),
		Name:     v.Get("Site_Name").String(),
		Location: domain.GeoPoint{Lat: lat, Lon: lon},
	}
	if !s.Location.Valid() {
		return domain.Site{}, malformed("%s coordinate out of range", path)
	}
	return s, nil
}

// number accepts JSON numbers and numeric strings; the service emits both.
func number(v gjson.Result, path string) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return f, nil
		}
	}
	return 0, malformed("%s is not a number", path)
}

func optionalNumber(v gjson.Result) domain.Measure {
	switch v.Type {
	case gjson.Number:
		return domain.MeasureFromSentinel(v.Float())
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return domain.MeasureFromSentinel(f)
		}
	}
	return domain.Measure{}
}
