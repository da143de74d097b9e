package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tactusapp/tactus-api/internal/logger"
	"github.com/tactusapp/tactus-api/internal/services"
	"github.com/tactusapp/tactus-api/internal/timeline"
)

type TimelineHandler struct {
	db       *gorm.DB
	timeline *services.TimelineService
}

func NewTimelineHandler(db *gorm.DB) *TimelineHandler {
	return &TimelineHandler{
		db:       db,
		timeline: services.NewTimelineService(db),
	}
}

type createScoreRequest struct {
	Title string `json:"title" binding:"required"`
}

// CreateScore creates an empty score with no timeline yet
func (h *TimelineHandler) CreateScore(c *gin.Context) {
	var req createScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	score, err := h.timeline.CreateScore(c.Request.Context(), req.Title)
	if err != nil {
		logger.Error("Failed to create score", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create score"})
		return
	}

	c.JSON(http.StatusCreated, score)
}

// GetTimeline returns the full decorated timeline of a score
func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	scoreID, ok := h.scoreID(c)
	if !ok {
		return
	}

	view, err := h.timeline.GetTimeline(c.Request.Context(), scoreID)
	if err != nil {
		h.renderError(c, err, "Failed to load timeline")
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetTempoGroups returns only the tempo groups, the shape the edit form
// consumes
func (h *TimelineHandler) GetTempoGroups(c *gin.Context) {
	scoreID, ok := h.scoreID(c)
	if !ok {
		return
	}

	view, err := h.timeline.GetTimeline(c.Request.Context(), scoreID)
	if err != nil {
		h.renderError(c, err, "Failed to load tempo groups")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tempo_groups": view.Groups})
}

// CreateTempoGroup materializes a tempo-group descriptor at the timeline tail
func (h *TimelineHandler) CreateTempoGroup(c *gin.Context) {
	scoreID, ok := h.scoreID(c)
	if !ok {
		return
	}

	var input services.TempoGroupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.timeline.CreateTempoGroup(c.Request.Context(), scoreID, input)
	if err != nil {
		h.renderError(c, err, "Failed to create tempo group")
		return
	}

	c.JSON(http.StatusCreated, view)
}

// UpdateTempoGroup rewrites an existing group's beat durations in place
func (h *TimelineHandler) UpdateTempoGroup(c *gin.Context) {
	scoreID, ok := h.scoreID(c)
	if !ok {
		return
	}

	var input services.TempoGroupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.timeline.UpdateTempoGroup(c.Request.Context(), scoreID, input)
	if err != nil {
		h.renderError(c, err, "Failed to update tempo group")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *TimelineHandler) scoreID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid score id"})
		return 0, false
	}
	c.Set("score_id", uint(id))
	return uint(id), true
}

func (h *TimelineHandler) renderError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, services.ErrScoreNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Score not found"})
	case errors.Is(err, services.ErrMissingStartingPosition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, timeline.ErrUpdateCreatedBeats):
		// Caller asked for an in-place update that would have grown the
		// timeline; that is a contract breach on their side.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, timeline.ErrEmptyMeasure):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logger.Error(msg, err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
