package models

import "fmt"

// TempoGroupType tags the two arms of the TempoGroup union
type TempoGroupType string

const (
	TempoGroupReal  TempoGroupType = "real"
	TempoGroupGhost TempoGroupType = "ghost"
)

// TempoGroup is a display/edit view over a maximal run of measures sharing
// one tempo and meter. It is never persisted - it is reconstructed on demand
// from beats and measures, or supplied as a descriptor when synthesizing new
// ones.
//
// The ghost arm wraps exactly one ghost measure, has NumOfRepeats 1 and a nil
// MeasureRangeString; Validate enforces that shape.
type TempoGroup struct {
	Name               string         `json:"name"`
	Type               TempoGroupType `json:"type"`
	Tempo              float64        `json:"tempo"`
	ManualTempos       []float64      `json:"manual_tempos,omitempty"`
	BigBeatsPerMeasure int            `json:"big_beats_per_measure"`
	StrongBeatIndexes  []int          `json:"strong_beat_indexes,omitempty"`
	NumOfRepeats       int            `json:"num_of_repeats"`
	MeasureRangeString *string        `json:"measure_range_string"`
	Measures           []Measure      `json:"measures,omitempty"`
}

// NewGhostTempoGroup wraps a single ghost measure in its singleton group.
func NewGhostTempoGroup(m Measure, tempo float64) TempoGroup {
	return TempoGroup{
		Type:               TempoGroupGhost,
		Tempo:              tempo,
		BigBeatsPerMeasure: len(m.Beats),
		NumOfRepeats:       1,
		Measures:           []Measure{m},
	}
}

// Validate checks the structural invariants of the group's arm.
func (g *TempoGroup) Validate() error {
	switch g.Type {
	case TempoGroupGhost:
		if len(g.Measures) != 1 {
			return fmt.Errorf("ghost tempo group must wrap exactly one measure, got %d", len(g.Measures))
		}
		if g.NumOfRepeats != 1 {
			return fmt.Errorf("ghost tempo group must have one repeat, got %d", g.NumOfRepeats)
		}
		if g.MeasureRangeString != nil {
			return fmt.Errorf("ghost tempo group must not carry a measure range")
		}
	case TempoGroupReal:
		if len(g.Measures) > 0 && g.NumOfRepeats != len(g.Measures) {
			return fmt.Errorf("tempo group repeat count %d does not match its %d measures", g.NumOfRepeats, len(g.Measures))
		}
	default:
		return fmt.Errorf("unknown tempo group type %q", g.Type)
	}
	return nil
}
