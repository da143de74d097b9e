package models

import (
	"time"

	"gorm.io/gorm"
)

// Score is the owning aggregate for one tempo timeline
type Score struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Title     string         `json:"title"`
}

// Beat is one atomic unit of timeline time.
//
// Position is contiguous and strictly increasing within a score; position 0
// is a reserved sentinel beat with duration 0 that anchors timestamp
// computation. Timestamp is never stored - it is recomputed on load as the
// running sum of all prior beats' durations.
type Beat struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ScoreID          uint      `gorm:"not null;uniqueIndex:idx_score_beat_position,priority:1" json:"score_id"`
	Position         int       `gorm:"not null;uniqueIndex:idx_score_beat_position,priority:2" json:"position"`
	Duration         float64   `gorm:"not null" json:"duration"`
	IncludeInMeasure bool      `gorm:"default:true" json:"include_in_measure"`
	Notes            string    `json:"notes,omitempty"`
	Timestamp        float64   `gorm:"-" json:"timestamp"`
}

// Measure is a span of consecutive beats bounded by its start beat and the
// next measure's start beat (or the end of the timeline).
//
// Number and Beats are derived on load: numbers are assigned sequentially to
// non-ghost measures in timeline order (nil for ghosts), Beats is the
// half-open slice of the score's beat sequence.
type Measure struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	ScoreID       uint           `gorm:"not null;index" json:"score_id"`
	StartBeatID   uint           `gorm:"not null" json:"start_beat_id"`
	StartBeat     Beat           `gorm:"foreignKey:StartBeatID" json:"start_beat"`
	RehearsalMark string         `json:"rehearsal_mark,omitempty"`
	IsGhost       bool           `gorm:"default:false" json:"is_ghost"`
	Number        *int           `gorm:"-" json:"number"`
	Beats         []Beat         `gorm:"-" json:"beats,omitempty"`
}

// Duration returns the summed duration of the measure's beats.
func (m *Measure) Duration() float64 {
	var total float64
	for _, b := range m.Beats {
		total += b.Duration
	}
	return total
}

// Counts returns the number of beats in the measure.
func (m *Measure) Counts() int {
	return len(m.Beats)
}

// ChangeLog records one committed timeline delta for undo history. The
// payload is the JSON serialization of the applied delta set and is written
// in the same transaction as the delta itself.
type ChangeLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ScoreID   uint      `gorm:"not null;index" json:"score_id"`
	RequestID string    `gorm:"not null" json:"request_id"`
	Action    string    `gorm:"not null" json:"action"`
	Payload   string    `gorm:"type:text" json:"payload"`
}
