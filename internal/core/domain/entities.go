package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every domain validation failure.
var ErrInvalid = errors.New("invalid")

// Site is a sampling location.
type Site struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Location        GeoPoint `json:"location"`
	Elevation       Measure  `json:"elevation"` // metres above sea level
	Address         string   `json:"address,omitempty"`
	City            string   `json:"city,omitempty"`
	StateOrProvince string   `json:"state_or_province,omitempty"`
	Country         string   `json:"country,omitempty"`
	Comments        string   `json:"comments,omitempty"`
}

// Validate checks the identifier and coordinate ranges.
func (s Site) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalid)
	}
	if !s.Location.Valid() {
		return fmt.Errorf("%w: site %s coordinate out of range (%f, %f)",
			ErrInvalid, s.ID, s.Location.Lat, s.Location.Lon)
	}
	return nil
}

// Sample is a single field sample collected at a site.
type Sample struct {
	ID          string     `json:"id"`
	SiteID      string     `json:"site_id"`
	Type        SampleType `json:"type"`
	CollectedAt time.Time  `json:"collected_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"` // nil = not applicable
	Volume      Measure    `json:"volume"`               // ml
	Depth       Measure    `json:"depth"`                // metres
	Phase       Phase      `json:"phase"`
	Comments    string     `json:"comments,omitempty"`
}

// UnmarshalJSON maps the legacy "not applicable" start time to nil.
func (s *Sample) UnmarshalJSON(data []byte) error {
	type plain Sample
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.StartedAt != nil {
		v.StartedAt = StartTimeFromLegacy(*v.StartedAt)
	}
	*s = Sample(v)
	return nil
}

// Validate checks the fields a sample cannot be stored without.
func (s Sample) Validate() error {
	if strings.TrimSpace(s.SiteID) == "" {
		return fmt.Errorf("%w: sample site id is required", ErrInvalid)
	}
	if s.CollectedAt.IsZero() {
		return fmt.Errorf("%w: sample collection time is required", ErrInvalid)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown sample type %d", ErrInvalid, s.Type)
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %d", ErrInvalid, s.Phase)
	}
	return nil
}

// Project owns an ordered set of sites and samples.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ContactName    string    `json:"contact_name"`
	ContactEmail   string    `json:"contact_email"`
	Citation       string    `json:"citation,omitempty"`
	URL            string    `json:"url,omitempty"`
	SampleIDPrefix string    `json:"sample_id_prefix"`
	Sites          []Site    `json:"sites"`
	Samples        []Sample  `json:"samples"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand to readers.
func (p Project) Clone() Project {
	c := p
	c.Sites = append([]Site(nil), p.Sites...)
	c.Samples = make([]Sample, len(p.Samples))
	for i, s := range p.Samples {
		if s.StartedAt != nil {
			t := *s.StartedAt
			s.StartedAt = &t
		}
		c.Samples[i] = s
	}
	return c
}

// SiteIndex returns the position of the site with the given ID, or -1.
func (p Project) SiteIndex(id string) int {
	for i := range p.Sites {
		if p.Sites[i].ID == id {
			return i
		}
	}
	return -1
}

// NextSampleID returns "<prefix>-<n>" for the first n that no existing sample uses.
func (p Project) NextSampleID() string {
	taken := make(map[string]struct{}, len(p.Samples))
	for _, s := range p.Samples {
		taken[s.ID] = struct{}{}
	}
	return nextFree(p.prefix()+"-", len(p.Samples)+1, taken)
}

// NextSiteID returns "<prefix>-S<n>" for the first n that no existing site uses.
func (p Project) NextSiteID() string {
	taken := make(map[string]struct{}, len(p.Sites))
	for _, s := range p.Sites {
		taken[s.ID] = struct{}{}
	}
	return nextFree(p.prefix()+"-S", len(p.Sites)+1, taken)
}

func (p Project) prefix() string {
	if p.SampleIDPrefix != "" {
		return p.SampleIDPrefix
	}
	return p.ID
}

func nextFree(prefix string, n int, taken map[string]struct{}) string {
	for {
		id := fmt.Sprintf("%s%d", prefix, n)
		if _, ok := taken[id]; !ok {
			return id
		}
		n++
	}
}
