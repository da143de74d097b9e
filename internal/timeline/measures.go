package timeline

import (
	"fmt"

	"github.com/tactusapp/tactus-api/internal/models"
)

// MeasureUpdate flips fields on an existing measure. The only in-place edit
// synthesis performs is converting the trailing ghost to a real measure.
type MeasureUpdate struct {
	ID      uint `json:"id"`
	IsGhost bool `json:"is_ghost"`
}

// MeasureCreate requests a new measure anchored at an already-materialized
// beat.
type MeasureCreate struct {
	StartBeatID   uint   `json:"start_beat"`
	RehearsalMark string `json:"rehearsal_mark,omitempty"`
	IsGhost       bool   `json:"is_ghost"`
}

// MeasureDelta is the measure-side companion of a BeatDelta.
type MeasureDelta struct {
	Modified []MeasureUpdate `json:"modified_measures"`
	Created  []MeasureCreate `json:"new_measures"`
}

// SynthesizeMeasures derives measure boundaries for a freshly materialized
// beat range (in position order, ids and positions assigned).
//
// When the existing timeline ends in a ghost measure starting exactly at the
// first synthesized beat, that ghost absorbs the first repeat: it is
// converted to a real measure in place and the repeat loop starts at 1. A
// trailing ghost is (re-)appended only when the final synthesized beat lies
// past the prior last measure, which keeps the tail at exactly one ghost.
func SynthesizeMeasures(beats []models.Beat, numOfRepeats, bigBeatsPerMeasure int, rehearsalMark string, existing ExistingItems) (MeasureDelta, error) {
	if numOfRepeats <= 0 || bigBeatsPerMeasure <= 0 {
		return MeasureDelta{}, fmt.Errorf("invalid measure shape: %d repeats of %d beats", numOfRepeats, bigBeatsPerMeasure)
	}
	if len(beats) < numOfRepeats*bigBeatsPerMeasure {
		return MeasureDelta{}, fmt.Errorf("measure synthesis needs %d beats, got %d", numOfRepeats*bigBeatsPerMeasure, len(beats))
	}

	var delta MeasureDelta
	priorLast := lastMeasureByPosition(existing.Measures)

	startRepeat := 0
	if priorLast != nil && priorLast.IsGhost && priorLast.StartBeat.Position == beats[0].Position {
		delta.Modified = append(delta.Modified, MeasureUpdate{ID: priorLast.ID, IsGhost: false})
		startRepeat = 1
	}

	for i := startRepeat; i < numOfRepeats; i++ {
		create := MeasureCreate{StartBeatID: beats[i*bigBeatsPerMeasure].ID}
		if i == 0 {
			create.RehearsalMark = rehearsalMark
		}
		delta.Created = append(delta.Created, create)
	}

	finalBeat := beats[len(beats)-1]
	if priorLast == nil || finalBeat.Position > priorLast.StartBeat.Position {
		delta.Created = append(delta.Created, MeasureCreate{StartBeatID: finalBeat.ID, IsGhost: true})
	}

	return delta, nil
}
