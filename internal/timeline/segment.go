package timeline

import (
	"fmt"

	"github.com/tactusapp/tactus-api/internal/models"
)

// groupRun is the open accumulator threaded through SegmentMeasures. It
// collects consecutive measures until a boundary closes the run into a
// TempoGroup.
type groupRun struct {
	measures           []models.Measure
	bigBeatsPerMeasure int
	containsGhost      bool
}

func (r *groupRun) last() models.Measure {
	return r.measures[len(r.measures)-1]
}

// SegmentMeasures partitions a chronological measure list into maximal tempo
// groups. Every input measure lands in exactly one group, in order. A new
// group opens whenever a measure is ghost, follows a ghost, carries a
// rehearsal mark, changes its beat count, or breaks the running tempo/meter.
func SegmentMeasures(measures []models.Measure) ([]models.TempoGroup, error) {
	if len(measures) == 0 {
		return nil, nil
	}

	var groups []models.TempoGroup
	run := &groupRun{
		measures:           []models.Measure{measures[0]},
		bigBeatsPerMeasure: len(measures[0].Beats),
		containsGhost:      measures[0].IsGhost,
	}

	for _, m := range measures[1:] {
		boundary := m.IsGhost ||
			run.containsGhost ||
			m.RehearsalMark != "" ||
			len(m.Beats) != run.bigBeatsPerMeasure ||
			!MeasureIsSameTempo(m, run.last())

		if boundary {
			group, err := closeRun(run)
			if err != nil {
				return nil, err
			}
			groups = append(groups, group)
			run = &groupRun{
				measures:           []models.Measure{m},
				bigBeatsPerMeasure: len(m.Beats),
				containsGhost:      m.IsGhost,
			}
			continue
		}

		run.measures = append(run.measures, m)
	}

	group, err := closeRun(run)
	if err != nil {
		return nil, err
	}
	return append(groups, group), nil
}

// closeRun converts the accumulator into a TempoGroup. When the run's last
// measure is neither uniform nor a valid mixed meter, the group carries
// per-beat manual tempos (free-form accelerando/ritardando).
func closeRun(run *groupRun) (models.TempoGroup, error) {
	first := run.measures[0]
	tempo, err := MeasureTempo(first)
	if err != nil {
		return models.TempoGroup{}, fmt.Errorf("segmenting measure %d: %w", first.ID, err)
	}

	if run.containsGhost {
		group := models.NewGhostTempoGroup(first, tempo)
		if err := group.Validate(); err != nil {
			return models.TempoGroup{}, err
		}
		return group, nil
	}

	group := models.TempoGroup{
		Name:               first.RehearsalMark,
		Type:               models.TempoGroupReal,
		Tempo:              tempo,
		BigBeatsPerMeasure: run.bigBeatsPerMeasure,
		NumOfRepeats:       len(run.measures),
		MeasureRangeString: measureRange(run.measures),
		Measures:           run.measures,
	}
	if MeasureIsMixedMeter(first) {
		group.StrongBeatIndexes = StrongBeatIndexes(first)
	}

	last := run.last()
	if !MeasureHasOneTempo(last) && !MeasureIsMixedMeter(last) {
		group.ManualTempos = make([]float64, 0, len(last.Beats))
		for _, b := range last.Beats {
			group.ManualTempos = append(group.ManualTempos, DurationToTempo(b.Duration))
		}
	}

	return group, nil
}

// measureRange renders the human-facing measure span of a non-ghost run,
// e.g. "5" or "5-8". Measures without assigned numbers yield no range.
func measureRange(measures []models.Measure) *string {
	first, last := measures[0].Number, measures[len(measures)-1].Number
	if first == nil || last == nil {
		return nil
	}
	var s string
	if *first == *last {
		s = fmt.Sprintf("%d", *first)
	} else {
		s = fmt.Sprintf("%d-%d", *first, *last)
	}
	return &s
}
