package handlers

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/recordings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// RecordingsHandler serves the recordings catalog
type RecordingsHandler struct {
	logger  logging.Logger
	repo    recordings.Repository
	deleter recordings.Deleter
}

// NewRecordingsHandler creates a new recordings handler
func NewRecordingsHandler(logger logging.Logger, repo recordings.Repository, deleter recordings.Deleter) *RecordingsHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &RecordingsHandler{
		logger:  logger,
		repo:    repo,
		deleter: deleter,
	}
}

// ListRecordingsRequest represents the query parameters of a listing
type ListRecordingsRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	StartTime string `form:"start_time"`
	EndTime   string `form:"end_time"`
}

type listRecordingsResponse struct {
	Recordings []*recordings.Recording `json:"recordings"`
	Total      int                     `json:"total"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
}

// ListRecordings handles GET /api/recordings
func (h *RecordingsHandler) ListRecordings(c *gin.Context) {
	var req ListRecordingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	query := recordings.RecordingQuery{Page: req.Page, PageSize: req.PageSize}

	var err error
	if query.StartTime, err = parseOptionalTime(req.StartTime); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_time format. Expected RFC3339 format"})
		return
	}
	if query.EndTime, err = parseOptionalTime(req.EndTime); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_time format. Expected RFC3339 format"})
		return
	}

	items, total, err := h.repo.Query(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("Failed to query recordings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query recordings"})
		return
	}
	if items == nil {
		items = []*recordings.Recording{}
	}

	c.JSON(http.StatusOK, listRecordingsResponse{
		Recordings: items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
}

// GetRecording handles GET /api/recordings/:id
func (h *RecordingsHandler) GetRecording(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetVideo handles GET /api/recordings/:id/video
func (h *RecordingsHandler) GetVideo(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	if _, err := os.Stat(rec.Path); err != nil {
		h.logger.Warn("Recording file is missing", "id", rec.ID, "path", rec.Path)
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording file not found"})
		return
	}

	c.Header("Content-Type", rec.MimeType)
	c.File(rec.Path)
}

// DeleteRecording handles DELETE /api/recordings/:id
func (h *RecordingsHandler) DeleteRecording(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	resp, err := h.deleter.DeleteRecordings(c.Request.Context(), recordings.DeleteRecordingsRequest{IDs: []string{rec.ID}})
	if err != nil {
		h.logger.Error("Failed to delete recording", "id", rec.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete recording"})
		return
	}
	if len(resp.Failed) > 0 {
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// lookup resolves the :id parameter, writing the error response itself when it fails.
func (h *RecordingsHandler) lookup(c *gin.Context) (*recordings.Recording, bool) {
	id := c.Param("id")
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get recording", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recording"})
		return nil, false
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording not found"})
		return nil, false
	}
	return rec, true
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// unix seconds are accepted as well
		secs, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return nil, err
		}
		t = time.Unix(secs, 0)
	}
	t = t.UTC()
	return &t, nil
}
