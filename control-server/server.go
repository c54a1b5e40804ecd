// Package controlserver exposes the capture session, the recordings catalog
// and the trim queue over a local HTTP API.
package controlserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/config"
	"github.com/yeti47/screenrec/control-server/handlers"
	"github.com/yeti47/screenrec/control-server/middleware"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

const (
	serviceName     = "screenrec"
	shutdownTimeout = 10 * time.Second
)

// Dependencies are the components the API is a front for.
type Dependencies struct {
	Recorder   handlers.Recorder
	Repository recordings.Repository
	Deleter    recordings.Deleter
	Trims      trim.Queue
}

type Server struct {
	logger logging.Logger
	addr   string
	router *gin.Engine
}

func NewServer(logger logging.Logger, cfg config.Config, deps Dependencies) *Server {
	if logger == nil {
		logger = logging.NopLogger
	}

	router := initializeGin(cfg)
	router.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		logger: logger,
		addr:   cfg.ListenAddr,
		router: router,
	}
	s.setupRoutes(cfg, deps)
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(cfg config.Config, deps Dependencies) {
	auth := middleware.NewAuthMiddleware(s.logger, cfg.ControlToken)

	recordingHandler := handlers.NewRecordingHandler(s.logger, deps.Recorder)
	recordingsHandler := handlers.NewRecordingsHandler(s.logger, deps.Repository, deps.Deleter)
	trimHandler := handlers.NewTrimHandler(s.logger, deps.Repository, deps.Trims)

	// Health check endpoint (no auth required)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	api := s.router.Group("/api")
	api.Use(auth.RequireToken())
	{
		api.GET("/recording", recordingHandler.GetStatus)
		api.POST("/recording/start", recordingHandler.Start)
		api.POST("/recording/stop", recordingHandler.Stop)
		api.POST("/recording/pause", recordingHandler.Pause)
		api.POST("/recording/resume", recordingHandler.Resume)
		api.POST("/recording/cancel", recordingHandler.Cancel)

		api.GET("/recordings", recordingsHandler.ListRecordings)
		api.GET("/recordings/:id", recordingsHandler.GetRecording)
		api.DELETE("/recordings/:id", recordingsHandler.DeleteRecording)
		api.GET("/recordings/:id/video", recordingsHandler.GetVideo)
		api.POST("/recordings/:id/trim", trimHandler.QueueTrim)

		api.GET("/trims/:id", trimHandler.GetTrim)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down control server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
