package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
)

// Recorder is the part of capture.Session exposed over HTTP.
// All commands are asynchronous; failures surface as session events.
type Recorder interface {
	Status() capture.Status
	Start()
	Stop()
	Pause()
	Resume()
	Cancel()
}

// RecordingHandler drives the capture session
type RecordingHandler struct {
	logger   logging.Logger
	recorder Recorder
}

// NewRecordingHandler creates a new recording handler
func NewRecordingHandler(logger logging.Logger, recorder Recorder) *RecordingHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &RecordingHandler{
		logger:   logger,
		recorder: recorder,
	}
}

// GetStatus handles GET /api/recording
func (h *RecordingHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.recorder.Status())
}

// Start handles POST /api/recording/start
func (h *RecordingHandler) Start(c *gin.Context) {
	h.command(c, "start", h.recorder.Start)
}

// Stop handles POST /api/recording/stop
func (h *RecordingHandler) Stop(c *gin.Context) {
	h.command(c, "stop", h.recorder.Stop)
}

// Pause handles POST /api/recording/pause
func (h *RecordingHandler) Pause(c *gin.Context) {
	h.command(c, "pause", h.recorder.Pause)
}

// Resume handles POST /api/recording/resume
func (h *RecordingHandler) Resume(c *gin.Context) {
	h.command(c, "resume", h.recorder.Resume)
}

// Cancel handles POST /api/recording/cancel
func (h *RecordingHandler) Cancel(c *gin.Context) {
	h.command(c, "cancel", h.recorder.Cancel)
}

func (h *RecordingHandler) command(c *gin.Context, name string, fn func()) {
	h.logger.Info("Received recording command", "command", name, "state", h.recorder.Status().State)
	fn()
	c.JSON(http.StatusAccepted, gin.H{
		"command": name,
		"status":  h.recorder.Status(),
	})
}
