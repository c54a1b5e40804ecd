package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/common"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

// TrimHandler queues trims of catalogued recordings
type TrimHandler struct {
	logger logging.Logger
	repo   recordings.Repository
	queue  trim.Queue
}

// NewTrimHandler creates a new trim handler
func NewTrimHandler(logger logging.Logger, repo recordings.Repository, queue trim.Queue) *TrimHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &TrimHandler{
		logger: logger,
		repo:   repo,
		queue:  queue,
	}
}

// TrimRequest selects the kept range in milliseconds, end exclusive
type TrimRequest struct {
	StartMs *int64 `json:"start_ms" binding:"required"`
	EndMs   *int64 `json:"end_ms" binding:"required"`
}

// QueueTrim handles POST /api/recordings/:id/trim
func (h *TrimHandler) QueueTrim(c *gin.Context) {
	var req TrimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid trim request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id := c.Param("id")
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get recording", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recording"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording not found"})
		return
	}

	job := &trim.Job{
		RecordingID: rec.ID,
		InputPath:   rec.Path,
		OutputPath:  common.EditedFileName(rec.Path),
		StartMs:     *req.StartMs,
		EndMs:       *req.EndMs,
	}

	if err := h.queue.Queue(job); err != nil {
		switch {
		case errors.Is(err, trim.ErrInvalidRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, trim.ErrOutputBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, trim.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to queue trim", "id", rec.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue trim"})
		}
		return
	}

	// workers update the job concurrently, so respond with a snapshot
	snapshot, ok := h.queue.Status(job.ID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Queued trim is unknown"})
		return
	}
	c.JSON(http.StatusAccepted, snapshot)
}

// GetTrim handles GET /api/trims/:id
func (h *TrimHandler) GetTrim(c *gin.Context) {
	job, ok := h.queue.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trim job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
