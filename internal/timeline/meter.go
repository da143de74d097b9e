// Package timeline implements the pure tempo-timeline engine: meter
// classification, tempo-group segmentation, beat/measure synthesis and the
// reconciliation policy that routes synthesized beats between in-place
// updates and appends.
//
// Every function here is synchronous and reentrant. Callers hand in a
// snapshot of the existing timeline and get back a description of deltas;
// applying those deltas transactionally is the persistence layer's job.
package timeline

import (
	"errors"
	"math"

	"github.com/tactusapp/tactus-api/internal/logger"
	"github.com/tactusapp/tactus-api/internal/models"
)

const (
	// tempoEpsilon is the tolerance for tempo/ratio equality checks.
	// Load-bearing for mixed-meter detection at the boundary - do not widen.
	tempoEpsilon = 1e-5

	// strongBeatRatio is the long/short duration ratio of a mixed meter.
	strongBeatRatio = 1.5
)

// ErrEmptyMeasure is returned when a tempo is requested for a measure with no
// beats.
var ErrEmptyMeasure = errors.New("cannot derive a tempo from a measure with no beats")

// round2 rounds to two decimals, the display precision for BPM values.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// DurationToTempo converts a beat duration in seconds to a display BPM,
// rounded to two decimals.
func DurationToTempo(d float64) float64 {
	return round2(60 / d)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < tempoEpsilon
}

// distinctDurations returns the distinct duration values of a measure's
// beats in ascending order. Distinctness is structural (exact float
// equality), matching how the durations were synthesized.
func distinctDurations(m models.Measure) []float64 {
	var distinct []float64
	for _, b := range m.Beats {
		seen := false
		for _, d := range distinct {
			if b.Duration == d {
				seen = true
				break
			}
		}
		if !seen {
			distinct = append(distinct, b.Duration)
		}
	}
	for i := 1; i < len(distinct); i++ {
		for j := i; j > 0 && distinct[j] < distinct[j-1]; j-- {
			distinct[j], distinct[j-1] = distinct[j-1], distinct[j]
		}
	}
	return distinct
}

// MeasureHasOneTempo reports whether every beat in the measure has exactly
// the first beat's duration. Empty and single-beat measures are uniform.
func MeasureHasOneTempo(m models.Measure) bool {
	if len(m.Beats) == 0 {
		return true
	}
	first := m.Beats[0].Duration
	for _, b := range m.Beats {
		if b.Duration != first {
			return false
		}
	}
	return true
}

// MeasureIsMixedMeter reports whether the measure's beats carry exactly two
// distinct durations whose ratio is within tempoEpsilon of 3:2.
func MeasureIsMixedMeter(m models.Measure) bool {
	distinct := distinctDurations(m)
	if len(distinct) != 2 {
		return false
	}
	return approxEqual(distinct[1]/distinct[0], strongBeatRatio)
}

// StrongBeatIndexes returns the ascending indexes of the beats carrying the
// longer of the measure's two durations. The measure must have exactly two
// distinct durations; anything else is a caller slip that degenerates to "no
// strong beats" with a diagnostic rather than an error.
func StrongBeatIndexes(m models.Measure) []int {
	distinct := distinctDurations(m)
	if len(distinct) != 2 {
		logger.Warn("strong beat indexes requested for a measure without two distinct durations", logger.Fields{
			"measure_id":         m.ID,
			"distinct_durations": len(distinct),
		})
		return nil
	}
	longest := distinct[1]
	var indexes []int
	for i, b := range m.Beats {
		if b.Duration == longest {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// MeasureIsSameTempo reports whether two measures carry the same tempo and
// meter. Uniform measures compare by display BPM; mixed-meter measures
// compare short duration, long duration and strong-beat positions. Any other
// pairing (either empty, or mismatched classifications) is not the same
// tempo.
func MeasureIsSameTempo(a, b models.Measure) bool {
	if len(a.Beats) == 0 || len(b.Beats) == 0 {
		return false
	}

	aUniform, bUniform := MeasureHasOneTempo(a), MeasureHasOneTempo(b)
	if aUniform && bUniform {
		return approxEqual(DurationToTempo(a.Beats[0].Duration), DurationToTempo(b.Beats[0].Duration))
	}

	aMixed, bMixed := MeasureIsMixedMeter(a), MeasureIsMixedMeter(b)
	if aMixed && bMixed {
		da, db := distinctDurations(a), distinctDurations(b)
		if !approxEqual(da[0], db[0]) || !approxEqual(da[1], db[1]) {
			return false
		}
		ia, ib := StrongBeatIndexes(a), StrongBeatIndexes(b)
		if len(ia) != len(ib) {
			return false
		}
		for i := range ia {
			if ia[i] != ib[i] {
				return false
			}
		}
		return true
	}

	return false
}

// MeasureTempo derives the display BPM of a measure: the short-beat tempo
// for mixed meters, the first beat's tempo otherwise.
func MeasureTempo(m models.Measure) (float64, error) {
	if len(m.Beats) == 0 {
		return 0, ErrEmptyMeasure
	}
	if MeasureIsMixedMeter(m) {
		return DurationToTempo(distinctDurations(m)[0]), nil
	}
	return DurationToTempo(m.Beats[0].Duration), nil
}
