package timeline

import (
	"errors"
	"fmt"

	"github.com/tactusapp/tactus-api/internal/models"
)

// ErrUpdateCreatedBeats means the update path would have had to create
// beats. The update path only rewrites durations in place; needing new rows
// is an invariant breach in the caller's routing, not a recoverable state.
var ErrUpdateCreatedBeats = errors.New("tempo group update produced new beats")

// SynthesisParams describes one tempo group to materialize.
//
// A non-nil EndTempo that differs from Tempo selects the linear-ramp mode;
// StrongBeatIndexes selects the mixed-meter pattern and is valid only at
// constant tempo.
type SynthesisParams struct {
	Tempo              float64
	EndTempo           *float64
	NumOfRepeats       int
	BigBeatsPerMeasure int
	StrongBeatIndexes  []int
}

func (p SynthesisParams) isRamp() bool {
	return p.EndTempo != nil && *p.EndTempo != p.Tempo
}

// finalTempo is the tempo the range hands off to whatever follows it.
func (p SynthesisParams) finalTempo() float64 {
	if p.EndTempo != nil {
		return *p.EndTempo
	}
	return p.Tempo
}

// BeatUpdate rewrites the duration of an existing beat in place.
type BeatUpdate struct {
	ID       uint    `json:"id"`
	Duration float64 `json:"duration"`
}

// BeatCreate requests a new beat; the transactional writer assigns its id
// and position.
type BeatCreate struct {
	Duration         float64 `json:"duration"`
	IncludeInMeasure bool    `json:"include_in_measure"`
}

// BeatDelta is the split of a synthesized duration sequence into in-place
// updates and appends.
type BeatDelta struct {
	Modified []BeatUpdate `json:"modified_beats"`
	Created  []BeatCreate `json:"new_beats"`
}

// Total returns how many beats the delta touches.
func (d BeatDelta) Total() int {
	return len(d.Modified) + len(d.Created)
}

// SynthesizeDurations produces the core duration sequence of a tempo group:
// NumOfRepeats * BigBeatsPerMeasure values.
//
// Constant mode emits 60/tempo per big beat, with strong beats stretched by
// 1.5x. Ramp mode spreads the tempo change linearly across the whole range,
// ignoring measure boundaries: beat k runs at tempo + delta*k.
func SynthesizeDurations(p SynthesisParams) ([]float64, error) {
	if p.NumOfRepeats <= 0 || p.BigBeatsPerMeasure <= 0 {
		return nil, fmt.Errorf("invalid tempo group shape: %d repeats of %d beats", p.NumOfRepeats, p.BigBeatsPerMeasure)
	}
	if p.Tempo <= 0 {
		return nil, fmt.Errorf("invalid tempo %v", p.Tempo)
	}

	total := p.NumOfRepeats * p.BigBeatsPerMeasure
	durations := make([]float64, 0, total)

	if p.isRamp() {
		if len(p.StrongBeatIndexes) > 0 {
			return nil, errors.New("a tempo ramp cannot carry mixed-meter strong beats")
		}
		delta := (*p.EndTempo - p.Tempo) / float64(total)
		for k := 0; k < total; k++ {
			durations = append(durations, 60/(p.Tempo+delta*float64(k)))
		}
		return durations, nil
	}

	strong := make(map[int]bool, len(p.StrongBeatIndexes))
	for _, i := range p.StrongBeatIndexes {
		strong[i] = true
	}
	base := 60 / p.Tempo
	for k := 0; k < total; k++ {
		if strong[k%p.BigBeatsPerMeasure] {
			durations = append(durations, base*strongBeatRatio)
		} else {
			durations = append(durations, base)
		}
	}
	return durations, nil
}

// ReconcileBeats assigns synthesized durations to the existing candidate
// beats in order, while shouldUpdate holds and candidates remain; the
// remainder become creations.
//
// On the create path an extra anchor beat at the group's final tempo is
// appended once the candidate pool runs dry - it becomes the start beat of
// the trailing ghost measure. The update path never appends the anchor and
// must never create beats at all.
func ReconcileBeats(durations []float64, anchorDuration float64, existing []models.Beat, shouldUpdate, fromCreate bool) (BeatDelta, error) {
	var delta BeatDelta
	consumed := 0

	for _, d := range durations {
		if shouldUpdate && consumed < len(existing) {
			delta.Modified = append(delta.Modified, BeatUpdate{ID: existing[consumed].ID, Duration: d})
			consumed++
			continue
		}
		delta.Created = append(delta.Created, BeatCreate{Duration: d, IncludeInMeasure: true})
	}

	if fromCreate {
		if poolExhausted := !shouldUpdate || consumed == len(existing); poolExhausted {
			delta.Created = append(delta.Created, BeatCreate{Duration: anchorDuration, IncludeInMeasure: true})
		}
	} else if len(delta.Created) > 0 {
		return BeatDelta{}, fmt.Errorf("%w: %d beats beyond the %d existing candidates", ErrUpdateCreatedBeats, len(delta.Created), len(existing))
	}

	return delta, nil
}

// SynthesizeBeats runs duration synthesis and reconciliation in one step
// against the beats at or after startingPosition.
func SynthesizeBeats(p SynthesisParams, existing []models.Beat, shouldUpdate, fromCreate bool) (BeatDelta, error) {
	durations, err := SynthesizeDurations(p)
	if err != nil {
		return BeatDelta{}, err
	}
	return ReconcileBeats(durations, 60/p.finalTempo(), existing, shouldUpdate, fromCreate)
}
