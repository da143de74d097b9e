package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tactusapp/tactus-api/internal/logger"
	"github.com/tactusapp/tactus-api/internal/metrics"
	"github.com/tactusapp/tactus-api/internal/models"
	"github.com/tactusapp/tactus-api/internal/timeline"
)

// ErrScoreNotFound wraps gorm's record-not-found for the score lookup.
var ErrScoreNotFound = errors.New("score not found")

// ErrMissingStartingPosition means an update was requested without saying
// which group to update.
var ErrMissingStartingPosition = errors.New("updating a tempo group requires its starting position")

// TimelineService is the sole writer of persisted timeline state. The engine
// functions it calls are pure; this service supplies the snapshot they read
// and applies the deltas they return as one transaction.
//
// Callers must serialize writes per score. The transaction gives atomicity,
// not cross-call ordering.
type TimelineService struct {
	db            *gorm.DB
	sentryMetrics *metrics.SentryMetrics
}

func NewTimelineService(db *gorm.DB) *TimelineService {
	return &TimelineService{
		db:            db,
		sentryMetrics: metrics.NewSentryMetrics(),
	}
}

// TimelineView is the materialized read model: beats with recomputed
// timestamps, measures with assigned numbers and beat slices, and the tempo
// groups inferred from them.
type TimelineView struct {
	Score    models.Score        `json:"score"`
	Beats    []models.Beat       `json:"beats"`
	Measures []models.Measure    `json:"measures"`
	Groups   []models.TempoGroup `json:"tempo_groups"`
}

// TempoGroupInput describes a tempo group to create or re-apply.
type TempoGroupInput struct {
	RehearsalMark      string   `json:"rehearsal_mark"`
	Tempo              float64  `json:"tempo" binding:"required"`
	EndTempo           *float64 `json:"end_tempo"`
	NumOfRepeats       int      `json:"num_of_repeats" binding:"required"`
	BigBeatsPerMeasure int      `json:"big_beats_per_measure" binding:"required"`
	StrongBeatIndexes  []int    `json:"strong_beat_indexes"`
	StartingPosition   *int     `json:"starting_position"`
}

func (in TempoGroupInput) synthesisParams() timeline.SynthesisParams {
	return timeline.SynthesisParams{
		Tempo:              in.Tempo,
		EndTempo:           in.EndTempo,
		NumOfRepeats:       in.NumOfRepeats,
		BigBeatsPerMeasure: in.BigBeatsPerMeasure,
		StrongBeatIndexes:  in.StrongBeatIndexes,
	}
}

// changeRecord is the undo payload persisted alongside every delta.
type changeRecord struct {
	StartingPosition int                   `json:"starting_position"`
	ShouldUpdate     bool                  `json:"should_update"`
	Beats            timeline.BeatDelta    `json:"beats"`
	Measures         timeline.MeasureDelta `json:"measures"`
}

// CreateScore creates an empty score.
func (s *TimelineService) CreateScore(ctx context.Context, title string) (*models.Score, error) {
	score := models.Score{Title: title}
	if err := s.db.WithContext(ctx).Create(&score).Error; err != nil {
		return nil, fmt.Errorf("creating score: %w", err)
	}
	return &score, nil
}

// GetTimeline loads and decorates the full timeline of a score.
func (s *TimelineService) GetTimeline(ctx context.Context, scoreID uint) (*TimelineView, error) {
	db := s.db.WithContext(ctx)

	var score models.Score
	if err := db.First(&score, scoreID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScoreNotFound
		}
		return nil, err
	}

	existing, err := loadExisting(db, scoreID)
	if err != nil {
		return nil, err
	}
	decorate(&existing)

	groups, err := timeline.SegmentMeasures(existing.Measures)
	if err != nil {
		return nil, fmt.Errorf("segmenting timeline of score %d: %w", scoreID, err)
	}

	return &TimelineView{
		Score:    score,
		Beats:    existing.Beats,
		Measures: existing.Measures,
		Groups:   groups,
	}, nil
}

// CreateTempoGroup materializes a tempo-group descriptor at the tail of the
// timeline: synthesized beats first reuse the trailing ghost's beats (when
// the policy allows), the remainder extend the timeline, and the measure
// delta re-establishes the single trailing ghost.
func (s *TimelineService) CreateTempoGroup(ctx context.Context, scoreID uint, input TempoGroupInput) (*TimelineView, error) {
	start := time.Now()
	var record changeRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.Score{}, scoreID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScoreNotFound
			}
			return err
		}

		existing, err := loadExisting(tx, scoreID)
		if err != nil {
			return err
		}

		startingPosition := existing.MaxBeatPosition()
		if input.StartingPosition != nil {
			startingPosition = *input.StartingPosition
		}
		shouldUpdate := timeline.ShouldUpdate(input.StartingPosition, existing)
		pool := existing.BeatsFrom(startingPosition)

		beatDelta, err := timeline.SynthesizeBeats(input.synthesisParams(), pool, shouldUpdate, true)
		if err != nil {
			return err
		}

		materialized, err := applyBeatDelta(tx, scoreID, beatDelta, pool, existing.MaxBeatPosition(), len(existing.Beats) == 0)
		if err != nil {
			return err
		}

		measureDelta, err := timeline.SynthesizeMeasures(materialized, input.NumOfRepeats, input.BigBeatsPerMeasure, input.RehearsalMark, existing)
		if err != nil {
			return err
		}
		if err := applyMeasureDelta(tx, scoreID, measureDelta); err != nil {
			return err
		}

		record = changeRecord{
			StartingPosition: startingPosition,
			ShouldUpdate:     shouldUpdate,
			Beats:            beatDelta,
			Measures:         measureDelta,
		}
		return writeChangeLog(tx, scoreID, "tempo_group.create", record)
	})
	if err != nil {
		return nil, err
	}

	s.sentryMetrics.RecordTimelineWrite(ctx, "tempo_group.create",
		record.Beats.Total(), len(record.Measures.Modified)+len(record.Measures.Created), time.Since(start))
	logger.Info("Tempo group created", logger.Fields{
		"score_id":       scoreID,
		"beat_rows":      record.Beats.Total(),
		"measure_rows":   len(record.Measures.Modified) + len(record.Measures.Created),
		"starting_pos":   record.StartingPosition,
		"reused_trailer": record.ShouldUpdate,
	})

	return s.GetTimeline(ctx, scoreID)
}

// UpdateTempoGroup re-applies a descriptor over the beats of an existing
// group, rewriting durations in place. The group's shape (repeat count, beats
// per measure) must match what is on disk; a shape change that would need new
// beats aborts with timeline.ErrUpdateCreatedBeats.
func (s *TimelineService) UpdateTempoGroup(ctx context.Context, scoreID uint, input TempoGroupInput) (*TimelineView, error) {
	if input.StartingPosition == nil {
		return nil, ErrMissingStartingPosition
	}

	start := time.Now()
	var record changeRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.Score{}, scoreID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScoreNotFound
			}
			return err
		}

		existing, err := loadExisting(tx, scoreID)
		if err != nil {
			return err
		}

		pool := existing.BeatsFrom(*input.StartingPosition)

		// The caller is editing a group that already exists, so the
		// reconciliation pool is authoritative; the create-path policy
		// does not apply here.
		beatDelta, err := timeline.SynthesizeBeats(input.synthesisParams(), pool, true, false)
		if err != nil {
			return err
		}

		for _, u := range beatDelta.Modified {
			if err := tx.Model(&models.Beat{}).Where("id = ?", u.ID).Update("duration", u.Duration).Error; err != nil {
				return fmt.Errorf("updating beat %d: %w", u.ID, err)
			}
		}

		if input.RehearsalMark != "" {
			if err := updateRehearsalMark(tx, scoreID, existing, *input.StartingPosition, input.RehearsalMark); err != nil {
				return err
			}
		}

		record = changeRecord{
			StartingPosition: *input.StartingPosition,
			ShouldUpdate:     true,
			Beats:            beatDelta,
		}
		return writeChangeLog(tx, scoreID, "tempo_group.update", record)
	})
	if err != nil {
		return nil, err
	}

	s.sentryMetrics.RecordTimelineWrite(ctx, "tempo_group.update", record.Beats.Total(), 0, time.Since(start))
	logger.Info("Tempo group updated", logger.Fields{
		"score_id":     scoreID,
		"beat_rows":    record.Beats.Total(),
		"starting_pos": record.StartingPosition,
	})

	return s.GetTimeline(ctx, scoreID)
}

// loadExisting snapshots the score's beats and measures, ordered by
// position. Measure order follows each measure's start beat.
func loadExisting(db *gorm.DB, scoreID uint) (timeline.ExistingItems, error) {
	var items timeline.ExistingItems

	if err := db.Where("score_id = ?", scoreID).Order("position asc").Find(&items.Beats).Error; err != nil {
		return items, fmt.Errorf("loading beats: %w", err)
	}
	if err := db.Preload("StartBeat").Where("score_id = ?", scoreID).Find(&items.Measures).Error; err != nil {
		return items, fmt.Errorf("loading measures: %w", err)
	}
	sort.SliceStable(items.Measures, func(i, j int) bool {
		return items.Measures[i].StartBeat.Position < items.Measures[j].StartBeat.Position
	})

	return items, nil
}

// decorate computes the derived fields the engine and the API expose:
// running timestamps, sequential numbers for non-ghost measures and each
// measure's half-open beat slice.
func decorate(items *timeline.ExistingItems) {
	var elapsed float64
	for i := range items.Beats {
		items.Beats[i].Timestamp = elapsed
		elapsed += items.Beats[i].Duration
	}

	number := 0
	for i := range items.Measures {
		m := &items.Measures[i]

		from := beatIndexAt(items.Beats, m.StartBeat.Position)
		to := len(items.Beats)
		if i+1 < len(items.Measures) {
			to = beatIndexAt(items.Beats, items.Measures[i+1].StartBeat.Position)
		}
		if from >= 0 && from <= to {
			m.Beats = items.Beats[from:to]
		}

		if m.IsGhost {
			m.Number = nil
			continue
		}
		number++
		n := number
		m.Number = &n
	}
}

func beatIndexAt(beats []models.Beat, position int) int {
	for i := range beats {
		if beats[i].Position == position {
			return i
		}
	}
	return -1
}

// applyBeatDelta commits a beat delta and returns the materialized
// synthesized range in position order. Created beats extend the timeline
// contiguously past the current maximum position; the first write to a score
// also lays down the position-0 sentinel beat.
func applyBeatDelta(tx *gorm.DB, scoreID uint, delta timeline.BeatDelta, pool []models.Beat, maxPosition int, emptyTimeline bool) ([]models.Beat, error) {
	materialized := make([]models.Beat, 0, delta.Total())

	for i, u := range delta.Modified {
		if err := tx.Model(&models.Beat{}).Where("id = ?", u.ID).Update("duration", u.Duration).Error; err != nil {
			return nil, fmt.Errorf("updating beat %d: %w", u.ID, err)
		}
		beat := pool[i]
		beat.Duration = u.Duration
		materialized = append(materialized, beat)
	}

	if emptyTimeline && len(delta.Created) > 0 {
		sentinel := models.Beat{ScoreID: scoreID, Position: 0, Duration: 0, IncludeInMeasure: false}
		if err := tx.Create(&sentinel).Error; err != nil {
			return nil, fmt.Errorf("creating sentinel beat: %w", err)
		}
	}

	position := maxPosition
	for _, cr := range delta.Created {
		position++
		beat := models.Beat{
			ScoreID:          scoreID,
			Position:         position,
			Duration:         cr.Duration,
			IncludeInMeasure: cr.IncludeInMeasure,
		}
		if err := tx.Create(&beat).Error; err != nil {
			return nil, fmt.Errorf("creating beat at position %d: %w", position, err)
		}
		materialized = append(materialized, beat)
	}

	return materialized, nil
}

func applyMeasureDelta(tx *gorm.DB, scoreID uint, delta timeline.MeasureDelta) error {
	for _, u := range delta.Modified {
		if err := tx.Model(&models.Measure{}).Where("id = ?", u.ID).Update("is_ghost", u.IsGhost).Error; err != nil {
			return fmt.Errorf("updating measure %d: %w", u.ID, err)
		}
	}
	for _, cr := range delta.Created {
		measure := models.Measure{
			ScoreID:       scoreID,
			StartBeatID:   cr.StartBeatID,
			RehearsalMark: cr.RehearsalMark,
			IsGhost:       cr.IsGhost,
		}
		if err := tx.Create(&measure).Error; err != nil {
			return fmt.Errorf("creating measure at beat %d: %w", cr.StartBeatID, err)
		}
	}
	return nil
}

func updateRehearsalMark(tx *gorm.DB, scoreID uint, existing timeline.ExistingItems, startingPosition int, mark string) error {
	for i := range existing.Measures {
		if existing.Measures[i].StartBeat.Position == startingPosition {
			return tx.Model(&models.Measure{}).Where("id = ?", existing.Measures[i].ID).
				Update("rehearsal_mark", mark).Error
		}
	}
	logger.Warn("No measure at starting position for rehearsal mark update", logger.Fields{
		"score_id":     scoreID,
		"starting_pos": startingPosition,
	})
	return nil
}

func writeChangeLog(tx *gorm.DB, scoreID uint, action string, record changeRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("serializing change record: %w", err)
	}
	entry := models.ChangeLog{
		ScoreID:   scoreID,
		RequestID: uuid.New().String(),
		Action:    action,
		Payload:   string(payload),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("recording change for undo: %w", err)
	}
	return nil
}
