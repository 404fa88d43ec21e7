package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// UnsetSentinel is the legacy numeric value meaning "no measurement".
// It only exists at the edges (import, remote payloads); in memory an unset
// value is a Measure with Valid == false.
const UnsetSentinel = -9999.0

// NotApplicableTime is the legacy far-future timestamp used for a sample
// start time that does not apply.
var NotApplicableTime = time.Date(4001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Measure is an optional numeric measurement.
type Measure struct {
	Value float64
	Valid bool
}

// Some returns a set measure.
func Some(v float64) Measure {
	return Measure{Value: v, Valid: true}
}

// MeasureFromSentinel maps the legacy sentinel to an unset measure.
func MeasureFromSentinel(v float64) Measure {
	if v == UnsetSentinel {
		return Measure{}
	}
	return Some(v)
}

// Sentinel returns the legacy encoding of m.
func (m Measure) Sentinel() float64 {
	if !m.Valid {
		return UnsetSentinel
	}
	return m.Value
}

// Format renders the value, or "" when unset.
func (m Measure) Format() string {
	if !m.Valid {
		return ""
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON encodes an unset measure as null.
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts null, a number, or the legacy sentinel.
func (m *Measure) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Measure{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = MeasureFromSentinel(v)
	return nil
}

// StartTimeFromLegacy maps the far-future sentinel (or anything after it) to nil.
func StartTimeFromLegacy(t time.Time) *time.Time {
	if t.IsZero() || !t.Before(NotApplicableTime) {
		return nil
	}
	return &t
}
