package timeline

import "github.com/tactusapp/tactus-api/internal/models"

// ExistingItems is the snapshot of the timeline window a synthesis call
// reconciles against. Beats are sorted ascending by position; the reader
// guarantees no duplicate positions.
type ExistingItems struct {
	Measures []models.Measure
	Beats    []models.Beat
}

// MaxBeatPosition returns the highest beat position in the snapshot, or 0
// for an empty timeline.
func (e ExistingItems) MaxBeatPosition() int {
	max := 0
	for _, b := range e.Beats {
		if b.Position > max {
			max = b.Position
		}
	}
	return max
}

// BeatsFrom returns the beats at or after the given position, preserving
// order. These are the candidates an update pass may overwrite.
func (e ExistingItems) BeatsFrom(position int) []models.Beat {
	var beats []models.Beat
	for _, b := range e.Beats {
		if b.Position >= position {
			beats = append(beats, b)
		}
	}
	return beats
}

// LastMeasureIsGhost reports whether the measure with the highest start
// position is a ghost. Position ties resolve to the later list entry; ties
// should be impossible under the contiguous-position invariant, but the rule
// is pinned because downstream behavior encodes it.
func LastMeasureIsGhost(measures []models.Measure) bool {
	last := lastMeasureByPosition(measures)
	return last != nil && last.IsGhost
}

func lastMeasureByPosition(measures []models.Measure) *models.Measure {
	var last *models.Measure
	for i := range measures {
		if last == nil || measures[i].StartBeat.Position >= last.StartBeat.Position {
			last = &measures[i]
		}
	}
	return last
}

// ShouldUpdate decides whether synthesized beats may overwrite existing rows
// at startingPosition (nil means append at the current tail).
//
// Overwriting is allowed only at the chronological end of the timeline:
// either the insertion point is the start of the trailing ghost measure, or
// it falls past every measure. Anything else would silently rewrite interior
// structure and routes to pure-append behavior instead.
func ShouldUpdate(startingPosition *int, existing ExistingItems) bool {
	position := existing.MaxBeatPosition()
	if startingPosition != nil {
		position = *startingPosition
	}

	var at *models.Measure
	for i := range existing.Measures {
		if existing.Measures[i].StartBeat.Position == position {
			at = &existing.Measures[i]
			break
		}
	}

	anyAfter := false
	for i := range existing.Measures {
		if existing.Measures[i].StartBeat.Position > position {
			anyAfter = true
			break
		}
	}

	if at != nil {
		return at.IsGhost && !anyAfter
	}
	return !anyAfter
}
