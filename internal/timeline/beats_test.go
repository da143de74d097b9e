package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactusapp/tactus-api/internal/models"
)

func floatPtr(f float64) *float64 { return &f }

func existingBeats(count, startPosition int) []models.Beat {
	beats := make([]models.Beat, 0, count)
	for i := 0; i < count; i++ {
		beats = append(beats, models.Beat{ID: uint(100 + i), Position: startPosition + i, Duration: 0.5})
	}
	return beats
}

func TestSynthesizeBeats_ConstantTempo(t *testing.T) {
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		NumOfRepeats:       2,
		BigBeatsPerMeasure: 4,
	}, nil, true, true)
	require.NoError(t, err)

	// 4 beats * 2 repeats, plus the trailing anchor beat
	require.Len(t, delta.Created, 9)
	assert.Empty(t, delta.Modified)
	for i, b := range delta.Created {
		assert.InDelta(t, 0.5, b.Duration, 1e-8, "beat %d", i)
		assert.True(t, b.IncludeInMeasure)
	}
}

func TestSynthesizeBeats_Ramp(t *testing.T) {
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		EndTempo:           floatPtr(80),
		NumOfRepeats:       1,
		BigBeatsPerMeasure: 4,
	}, nil, true, true)
	require.NoError(t, err)

	expected := []float64{60.0 / 120, 60.0 / 110, 60.0 / 100, 60.0 / 90, 60.0 / 80}
	require.Len(t, delta.Created, len(expected))
	for i, want := range expected {
		assert.InDelta(t, want, delta.Created[i].Duration, 1e-8, "beat %d", i)
	}
}

func TestSynthesizeBeats_MixedMeter(t *testing.T) {
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		NumOfRepeats:       1,
		BigBeatsPerMeasure: 4,
		StrongBeatIndexes:  []int{1},
	}, nil, true, true)
	require.NoError(t, err)

	expected := []float64{0.5, 0.75, 0.5, 0.5, 0.5}
	require.Len(t, delta.Created, len(expected))
	for i, want := range expected {
		assert.InDelta(t, want, delta.Created[i].Duration, 1e-8, "beat %d", i)
	}
}

func TestSynthesizeBeats_MixedMeterRepeatsCycle(t *testing.T) {
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		NumOfRepeats:       2,
		BigBeatsPerMeasure: 3,
		StrongBeatIndexes:  []int{0, 2},
	}, nil, true, true)
	require.NoError(t, err)

	// The strong-beat pattern repeats per measure
	expected := []float64{0.75, 0.5, 0.75, 0.75, 0.5, 0.75, 0.5}
	require.Len(t, delta.Created, len(expected))
	for i, want := range expected {
		assert.InDelta(t, want, delta.Created[i].Duration, 1e-8, "beat %d", i)
	}
}

func TestSynthesizeBeats_RampRejectsStrongBeats(t *testing.T) {
	_, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		EndTempo:           floatPtr(80),
		NumOfRepeats:       1,
		BigBeatsPerMeasure: 4,
		StrongBeatIndexes:  []int{1},
	}, nil, true, true)
	require.Error(t, err)
}

func TestSynthesizeBeats_InvalidShape(t *testing.T) {
	_, err := SynthesizeBeats(SynthesisParams{Tempo: 120, NumOfRepeats: 0, BigBeatsPerMeasure: 4}, nil, true, true)
	require.Error(t, err)

	_, err = SynthesizeBeats(SynthesisParams{Tempo: 0, NumOfRepeats: 1, BigBeatsPerMeasure: 4}, nil, true, true)
	require.Error(t, err)
}

func TestReconcileBeats_Exhaustiveness(t *testing.T) {
	// For every split of existing beats vs needed count, the delta covers
	// exactly repeats*bigBeatsPerMeasure beats, plus the anchor when the
	// existing pool ran dry on the create path.
	const needed = 4

	for existingCount := 0; existingCount <= needed+2; existingCount++ {
		t.Run(fmt.Sprintf("existing=%d", existingCount), func(t *testing.T) {
			delta, err := SynthesizeBeats(SynthesisParams{
				Tempo:              120,
				NumOfRepeats:       1,
				BigBeatsPerMeasure: needed,
			}, existingBeats(existingCount, 10), true, true)
			require.NoError(t, err)

			expectedTotal := needed
			if existingCount <= needed {
				expectedTotal++ // pool exhausted: the anchor beat is appended
			}
			assert.Equal(t, expectedTotal, delta.Total())

			expectedModified := existingCount
			if expectedModified > expectedTotal {
				expectedModified = expectedTotal
			}
			assert.Len(t, delta.Modified, expectedModified)
		})
	}
}

func TestReconcileBeats_ModifiesInOrder(t *testing.T) {
	existing := existingBeats(2, 10)
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              100,
		NumOfRepeats:       1,
		BigBeatsPerMeasure: 4,
	}, existing, true, true)
	require.NoError(t, err)

	require.Len(t, delta.Modified, 2)
	assert.Equal(t, existing[0].ID, delta.Modified[0].ID)
	assert.Equal(t, existing[1].ID, delta.Modified[1].ID)
	require.Len(t, delta.Created, 3) // 2 remaining + anchor
}

func TestReconcileBeats_ShouldUpdateFalseAppendsAll(t *testing.T) {
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              120,
		NumOfRepeats:       1,
		BigBeatsPerMeasure: 4,
	}, existingBeats(3, 10), false, true)
	require.NoError(t, err)

	assert.Empty(t, delta.Modified)
	assert.Len(t, delta.Created, 5)
}

func TestSynthesizeBeats_UpdatePathPurity(t *testing.T) {
	// With sufficient existing beats the update path never creates rows.
	delta, err := SynthesizeBeats(SynthesisParams{
		Tempo:              90,
		NumOfRepeats:       2,
		BigBeatsPerMeasure: 3,
	}, existingBeats(8, 10), true, false)
	require.NoError(t, err)

	assert.Len(t, delta.Modified, 6)
	assert.Empty(t, delta.Created)
	for _, u := range delta.Modified {
		assert.InDelta(t, 60.0/90, u.Duration, 1e-8)
	}
}

func TestSynthesizeBeats_UpdatePathCreationIsFatal(t *testing.T) {
	_, err := SynthesizeBeats(SynthesisParams{
		Tempo:              90,
		NumOfRepeats:       2,
		BigBeatsPerMeasure: 3,
	}, existingBeats(4, 10), true, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpdateCreatedBeats)
}
