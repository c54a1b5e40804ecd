// Package autostop stops a running recording when the machine runs low on storage or battery.
package autostop

import (
	"sync"
	"time"

	"github.com/yeti47/screenrec/ccc/logging"
)

const (
	DefaultInterval          = 15 * time.Second
	DefaultMinFreeBytes      = 100 * 1024 * 1024
	DefaultMinBatteryPercent = 10
)

// Target is the recording the monitor guards.
type Target interface {
	IsStarted() bool
	// AutoStop stops the recording if it is still running and reports reason afterwards.
	AutoStop(reason error) bool
}

// Options tune a Monitor. Zero values select the defaults.
type Options struct {
	Interval          time.Duration
	MinFreeBytes      uint64
	MinBatteryPercent int
}

// Monitor periodically checks storage and battery while a recording runs.
// It issues at most one stop per Start and then goes quiet.
type Monitor struct {
	logger  logging.Logger
	target  Target
	storage StorageProbe
	battery BatteryProbe
	folder  func() string

	interval          time.Duration
	minFreeBytes      uint64
	minBatteryPercent int

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewMonitor creates a monitor checking the free space of the folder returned by folder.
func NewMonitor(logger logging.Logger, target Target, storage StorageProbe, battery BatteryProbe, folder func() string, opts Options) *Monitor {
	if logger == nil {
		logger = logging.NopLogger
	}
	m := &Monitor{
		logger:            logger,
		target:            target,
		storage:           storage,
		battery:           battery,
		folder:            folder,
		interval:          opts.Interval,
		minFreeBytes:      opts.MinFreeBytes,
		minBatteryPercent: opts.MinBatteryPercent,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.minFreeBytes == 0 {
		m.minFreeBytes = DefaultMinFreeBytes
	}
	if m.minBatteryPercent == 0 {
		m.minBatteryPercent = DefaultMinBatteryPercent
	}
	return m
}

// Start begins checking. The first check runs immediately. Starting a running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh != nil {
		select {
		case <-m.stopped:
		case <-m.stopCh:
		default:
			return
		}
	}

	m.stopCh = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.worker(m.stopCh, m.stopped)
}

// Stop cancels further checks without waiting. It is safe to call from session listeners.
func (m *Monitor) Stop() {
	m.stop()
}

// StopAndWait cancels further checks and waits for an in-flight check to finish.
func (m *Monitor) StopAndWait() {
	if stopped := m.stop(); stopped != nil {
		<-stopped
	}
}

func (m *Monitor) stop() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh == nil {
		return nil
	}
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	return m.stopped
}

// Running reports whether checks are still scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh == nil {
		return false
	}
	select {
	case <-m.stopCh:
		return false
	case <-m.stopped:
		return false
	default:
		return true
	}
}

func (m *Monitor) worker(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	m.logger.Debug("Auto-stop monitor started", "interval", m.interval.String())
	if cancelled(stopCh) || m.check() {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cancelled(stopCh) || m.check() {
				return
			}
		case <-stopCh:
			return
		}
	}
}

func cancelled(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// check runs one round of checks and reports whether the monitor is done.
func (m *Monitor) check() bool {
	if !m.target.IsStarted() {
		m.logger.Debug("Recording no longer running, auto-stop monitor exiting")
		return true
	}

	folder := m.folder()
	if free, err := m.storage.FreeBytes(folder); err != nil {
		m.logger.Debug("Free space unknown, skipping storage check", "folder", folder, "error", err)
	} else if free > 0 && free < m.minFreeBytes {
		m.trigger(&LimitError{Limit: ErrLowStorage, FreeBytes: free, MinFreeBytes: m.minFreeBytes})
		return true
	}

	if pct, err := m.battery.Percent(); err != nil {
		m.logger.Debug("Battery level unknown, skipping battery check", "error", err)
	} else if pct >= 0 && pct <= m.minBatteryPercent {
		m.trigger(&LimitError{Limit: ErrLowBattery, BatteryPct: pct, MinBatteryPct: m.minBatteryPercent})
		return true
	}

	return false
}

func (m *Monitor) trigger(reason *LimitError) {
	m.logger.Warn("Stopping recording", "reason", reason.Error())
	if !m.target.AutoStop(reason) {
		m.logger.Debug("Recording had already stopped")
	}
}
