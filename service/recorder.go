// Package service wires the capture session to everything that reacts to it:
// the auto-stop monitor, the recordings catalog, notifications and the screen saver.
package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/yeti47/screenrec/autostop"
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/config"
	"github.com/yeti47/screenrec/notifications"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

const scanTimeout = 2 * time.Minute

// Session is the part of capture.Session the service drives.
type Session interface {
	Subscribe(l capture.Listener) (unsubscribe func())
	AutoStop(reason error) bool
}

// Monitor is the part of autostop.Monitor the service drives.
type Monitor interface {
	Start()
	Stop()
	StopAndWait()
}

// RecorderService reacts to session events for as long as it runs.
type RecorderService struct {
	logger   logging.Logger
	session  Session
	monitor  Monitor
	scanner  recordings.Scanner
	notifier notifications.Notifier
	screen   ScreenWatcher
	settings config.SettingsProvider[config.Config]

	mu          sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc
	background  sync.WaitGroup
}

// NewRecorderService creates the service. screen may be nil to disable stop on screen off.
func NewRecorderService(logger logging.Logger, session Session, monitor Monitor, scanner recordings.Scanner, notifier notifications.Notifier, screen ScreenWatcher, settings config.SettingsProvider[config.Config]) *RecorderService {
	if logger == nil {
		logger = logging.NopLogger
	}
	if notifier == nil {
		notifier = notifications.NopNotifier
	}
	return &RecorderService{
		logger:   logger,
		session:  session,
		monitor:  monitor,
		scanner:  scanner,
		notifier: notifier,
		screen:   screen,
		settings: settings,
	}
}

// Start subscribes to the session and starts watching the screen saver.
func (s *RecorderService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.unsubscribe = s.session.Subscribe(capture.Listener{
		OnStart:  s.onStart,
		OnStop:   s.onStop,
		OnCancel: s.onCancel,
		OnError:  s.onError,
	})

	if s.screen != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if err := s.screen.Watch(ctx, s.onScreenOff); err != nil {
				s.logger.Warn("Stop on screen off unavailable", "error", err)
			}
		}()
	}
}

// Close unsubscribes, stops the monitor and waits for pending scans.
func (s *RecorderService) Close() {
	s.mu.Lock()
	unsubscribe, cancel := s.unsubscribe, s.cancel
	s.unsubscribe, s.cancel = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.monitor.StopAndWait()
	s.background.Wait()
}

// Listeners run on the session's control goroutine and must not block on it.

func (s *RecorderService) onStart() {
	cfg := s.settings.GetSettings()
	if cfg.StopOnShake {
		s.logger.Warn("Stop on shake is not supported on this platform")
	}
	s.monitor.Start()
}

func (s *RecorderService) onStop(file string) {
	s.monitor.Stop()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.catalog(file, "", false)
	}()
}

func (s *RecorderService) onCancel() {
	s.monitor.Stop()
}

func (s *RecorderService) onError(err error) {
	s.logger.Error("Recording error", "error", err)
	if autostop.IsLimitError(err) {
		s.monitor.Stop()
	}
	s.notify(notifications.RecordingFailed(err))
}

func (s *RecorderService) onScreenOff() {
	if !s.settings.GetSettings().StopOnScreenOff {
		return
	}
	if s.session.AutoStop(nil) {
		s.logger.Info("Recording stopped because the screen turned off")
	}
}

// catalog adds a finished file to the recordings catalog and tells the user about it.
func (s *RecorderService) catalog(file, sourceID string, trimmed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	recording, err := s.scanner.Scan(ctx, file, sourceID)
	if err != nil {
		s.logger.Error("Failed to catalog recording", "file", file, "error", err)
		if trimmed {
			s.notify(notifications.TrimFinished(file))
			return
		}
		var size int64
		if info, statErr := os.Stat(file); statErr == nil {
			size = info.Size()
		}
		s.notify(notifications.RecordingSaved(file, size, 0))
		return
	}

	if trimmed {
		s.notify(notifications.TrimFinished(recording.Path))
		return
	}
	s.notify(notifications.RecordingSaved(recording.Path, recording.SizeBytes, recording.Duration))
}

func (s *RecorderService) notify(n notifications.Notification) {
	if !s.settings.GetSettings().Notifications {
		return
	}
	if err := s.notifier.Notify(n); err != nil {
		s.logger.Warn("Failed to show notification", "error", err)
	}
}

// TrimCallbacks catalogs trimmed copies and reports failed trims.
func (s *RecorderService) TrimCallbacks() trim.Callbacks {
	return trim.Callbacks{
		OnSuccess: func(job trim.Job) {
			s.catalog(job.OutputPath, job.RecordingID, true)
		},
		OnFailure: func(job trim.Job, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.notify(notifications.TrimFailed(job.InputPath, err))
		},
	}
}
