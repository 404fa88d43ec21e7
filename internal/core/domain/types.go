package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SampleType is the kind of water body a sample was taken from.
type SampleType int

const (
	SampleLake SampleType = iota
	SampleGround
	SamplePrecipitation
	SampleRiverOrStream
	SampleSpring
	SampleTap
	SampleOcean
	SampleCanal
	SampleCaveDrip
	SampleSnowPit
	SampleMine
	SampleStem
	SampleOther
)

var sampleTypeNames = [...]string{
	"Lake", "Ground", "Precipitation", "River_or_stream", "Spring", "Tap",
	"Ocean", "Canal", "Cave_drip", "Snow_pit", "Mine", "Stem", "Other",
}

func (t SampleType) Valid() bool {
	return t >= SampleLake && t <= SampleOther
}

func (t SampleType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("SampleType(%d)", int(t))
	}
	return sampleTypeNames[t]
}

// ParseSampleType accepts the export text in any case.
func ParseSampleType(s string) (SampleType, error) {
	for i, name := range sampleTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return SampleType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown sample type %q", ErrInvalid, s)
}

func (t SampleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(t.String()))
}

func (t *SampleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseSampleType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Phase is the physical state of a sample at collection.
type Phase int

const (
	PhaseLiquid Phase = iota
	PhaseVapor
	PhaseSolid
	PhaseMixed
)

var phaseNames = [...]string{"Liquid", "Vapor", "Solid", "Mixed"}

func (p Phase) Valid() bool {
	return p >= PhaseLiquid && p <= PhaseMixed
}

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown phase %q", ErrInvalid, s)
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(p.String()))
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
