package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/samirrijal/fieldsync/internal/adapters/wateriso"
	"github.com/samirrijal/fieldsync/internal/core/domain"
)

// parseSites accepts either a raw dump of the remote service (entries keyed
// Site_ID, Latitude, Longitude) or a saved cache blob (entries keyed id,
// location). The format is picked from the first entry.
func parseSites(data []byte) ([]domain.Site, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	first := gjson.GetBytes(data, "sites.0")
	if !first.Exists() {
		if !gjson.GetBytes(data, "sites").IsArray() {
			return nil, errors.New("sites is not an array")
		}
		return nil, nil
	}
	if first.Get("Site_ID").Exists() {
		return wateriso.DecodeSites(data)
	}

	var blob struct {
		Sites []domain.Site `json:"sites"`
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	for _, s := range blob.Sites {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return blob.Sites, nil
}
