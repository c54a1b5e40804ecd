// Package app assembles screenrec's components from the configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/yeti47/screenrec/autostop"
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/capture/gstreamer"
	"github.com/yeti47/screenrec/capture/portal"
	"github.com/yeti47/screenrec/ccc/db"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/config"
	filemanagement "github.com/yeti47/screenrec/file-management"
	"github.com/yeti47/screenrec/media/mp4"
	"github.com/yeti47/screenrec/notifications"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/service"
	"github.com/yeti47/screenrec/trim"
)

const (
	logFileName       = "screenrec.log"
	trimDrainTimeout  = 30 * time.Second
	thumbnailsDirName = "thumbnails"
)

// Options select the configuration file and how logs are written.
type Options struct {
	ConfigPath string
	Overrides  config.ConfigOverrides
	Console    bool
}

// App holds the components every command needs: configuration, logging and the catalog.
// Capture and trimming are assembled on demand.
type App struct {
	Settings *config.FileProvider
	Logger   logging.Logger
	Files    *filemanagement.LocalFileTracker

	Repository *recordings.SQLiteRepository
	Scanner    recordings.Scanner
	Deleter    recordings.Deleter

	db *sql.DB
}

func New(opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultConfigPath()
	}

	settings, err := config.NewFileProvider(opts.ConfigPath, opts.Overrides, nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := settings.GetSettings()

	logger := logging.CreateLogger(logging.ParseLogLevel(cfg.LogLevel), cfg.LogPath, logFileName, opts.Console)

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		settings.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	repo, err := recordings.NewSQLiteRepository(database)
	if err != nil {
		database.Close()
		settings.Close()
		return nil, fmt.Errorf("initializing recordings catalog: %w", err)
	}

	files := filemanagement.NewLocalFileTracker(logger)
	thumbnailDir := filepath.Join(filepath.Dir(cfg.DatabasePath), thumbnailsDirName)
	if err := files.EnsureDirectory(thumbnailDir); err != nil {
		logger.Warn("Thumbnails unavailable", "dir", thumbnailDir, "error", err)
	}

	scanner := recordings.NewScanner(logger, repo,
		recordings.NewFFmpegMetadataExtractor(logger),
		recordings.NewFFmpegThumbnailGenerator(logger),
		thumbnailDir)

	return &App{
		Settings:   settings,
		Logger:     logger,
		Files:      files,
		Repository: repo,
		Scanner:    scanner,
		Deleter:    recordings.NewDeleter(logger, repo, files),
		db:         database,
	}, nil
}

// Config returns the current configuration.
func (a *App) Config() config.Config {
	return a.Settings.GetSettings()
}

// NewTrimQueue creates a trim queue writing MP4 through the native trimmer.
func (a *App) NewTrimQueue() trim.Queue {
	cfg := a.Config()
	return trim.NewQueue(a.Logger, a.NewTrimmer(), a.Files, cfg.TrimWorkers, cfg.TrimQueueSize, trimDrainTimeout)
}

// NewTrimmer creates the trimmer used for synchronous trims.
func (a *App) NewTrimmer() *trim.Pipeline {
	return trim.NewPipeline(a.Logger, mp4.Open, mp4.Create)
}

func (a *App) Close() error {
	return errors.Join(a.db.Close(), a.Settings.Close())
}

// Recorder is a capture session with everything that reacts to it.
type Recorder struct {
	Session *capture.Session
	Service *service.RecorderService

	platform *portal.Platform
	notifier *notifications.DesktopNotifier
	battery  *autostop.UPowerProbe
	once     sync.Once
}

// NewRecorder connects to the desktop portal and starts the recorder service.
func (a *App) NewRecorder(ctx context.Context) (*Recorder, error) {
	gstreamer.InitGStreamer()

	platform, err := portal.Connect(a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to the screen cast portal: %w", err)
	}

	session := capture.NewSession(a.Logger, platform, gstreamer.NewEncoderFactory(a.Logger), a.Files,
		capture.NewSettingsProvider(a.Settings))

	upower := &autostop.UPowerProbe{}
	monitor := autostop.NewMonitor(a.Logger, session,
		autostop.StatfsProbe{},
		autostop.FirstBatteryProbe{upower, autostop.SysfsProbe{}},
		func() string { return a.Config().RecordingsFolder },
		autostop.Options{})

	notifier := notifications.NewDesktopNotifier(a.Logger)
	svc := service.NewRecorderService(a.Logger, session, monitor, a.Scanner, notifier,
		service.NewScreenSaverWatcher(a.Logger), a.Settings)
	svc.Start(ctx)

	return &Recorder{
		Session:  session,
		Service:  svc,
		platform: platform,
		notifier: notifier,
		battery:  upower,
	}, nil
}

// Close stops the session, keeping a running recording, and then the service
// once the recording has been catalogued.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		r.Session.Close()
		r.Service.Close()
		err = errors.Join(r.notifier.Close(), r.battery.Close(), r.platform.Close())
	})
	return err
}
