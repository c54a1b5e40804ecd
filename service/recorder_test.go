package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeti47/screenrec/autostop"
	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/config"
	"github.com/yeti47/screenrec/notifications"
	"github.com/yeti47/screenrec/recordings"
	"github.com/yeti47/screenrec/trim"
)

type fakeSession struct {
	mu        sync.Mutex
	listeners map[int]capture.Listener
	next      int
	autoStops []error
	started   bool
}

func (s *fakeSession) Subscribe(l capture.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]capture.Listener)
	}
	id := s.next
	s.next++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *fakeSession) AutoStop(reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoStops = append(s.autoStops, reason)
	stopped := s.started
	s.started = false
	return stopped
}

func (s *fakeSession) each(fn func(capture.Listener)) {
	s.mu.Lock()
	var ls []capture.Listener
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

func (s *fakeSession) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

type fakeMonitor struct {
	mu     sync.Mutex
	starts int
	stops  int
	waits  int
}

func (m *fakeMonitor) Start()       { m.mu.Lock(); m.starts++; m.mu.Unlock() }
func (m *fakeMonitor) Stop()        { m.mu.Lock(); m.stops++; m.mu.Unlock() }
func (m *fakeMonitor) StopAndWait() { m.mu.Lock(); m.waits++; m.mu.Unlock() }

func (m *fakeMonitor) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

type scanCall struct {
	path     string
	sourceID string
}

type fakeScanner struct {
	mu    sync.Mutex
	calls []scanCall
	err   error
}

func (s *fakeScanner) Scan(ctx context.Context, path string, sourceID string) (*recordings.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scanCall{path: path, sourceID: sourceID})
	if s.err != nil {
		return nil, s.err
	}
	return &recordings.Recording{ID: "id", Path: path, SizeBytes: 2_000_000, Duration: 3 * time.Second}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (n *fakeNotifier) Notify(notification notifications.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) summaries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.Summary)
	}
	return out
}

type fakeScreen struct {
	ready       chan struct{}
	onScreenOff func()
}

func (f *fakeScreen) Watch(ctx context.Context, onScreenOff func()) error {
	f.onScreenOff = onScreenOff
	close(f.ready)
	<-ctx.Done()
	return nil
}

type serviceHarness struct {
	svc      *RecorderService
	session  *fakeSession
	monitor  *fakeMonitor
	scanner  *fakeScanner
	notifier *fakeNotifier
	screen   *fakeScreen
}

func newServiceHarness(t *testing.T, cfg config.Config) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		session:  &fakeSession{},
		monitor:  &fakeMonitor{},
		scanner:  &fakeScanner{},
		notifier: &fakeNotifier{},
		screen:   &fakeScreen{ready: make(chan struct{})},
	}
	h.svc = NewRecorderService(nil, h.session, h.monitor, h.scanner, h.notifier, h.screen, config.StaticProvider[config.Config]{Settings: cfg})
	h.svc.Start(context.Background())
	<-h.screen.ready
	return h
}

func TestRecorderService_StartStopsAndCatalogs(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: true})

	h.session.each(func(l capture.Listener) { l.OnStart() })
	starts, _ := h.monitor.counts()
	assert.Equal(t, 1, starts)

	h.session.each(func(l capture.Listener) { l.OnStop("/videos/a.mp4") })
	h.svc.Close()

	_, stops := h.monitor.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, []scanCall{{path: "/videos/a.mp4"}}, h.scanner.calls)
	require.Equal(t, []string{"Recording saved"}, h.notifier.summaries())
	assert.Equal(t, "a.mp4 (2.0 MB, 3s)", h.notifier.sent[0].Body)
	assert.Equal(t, 1, h.monitor.waits)
	assert.Equal(t, 0, h.session.listenerCount())
}

func TestRecorderService_NotificationsDisabled(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: false})

	h.session.each(func(l capture.Listener) { l.OnStop("/videos/a.mp4") })
	h.session.each(func(l capture.Listener) { l.OnError(errors.New("boom")) })
	h.svc.Close()

	assert.Len(t, h.scanner.calls, 1)
	assert.Empty(t, h.notifier.summaries())
}

func TestRecorderService_CancelStopsMonitorOnly(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: true})

	h.session.each(func(l capture.Listener) { l.OnCancel() })
	h.svc.Close()

	_, stops := h.monitor.counts()
	assert.Equal(t, 1, stops)
	assert.Empty(t, h.scanner.calls)
	assert.Empty(t, h.notifier.summaries())
}

func TestRecorderService_ErrorNotifies(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: true})

	h.session.each(func(l capture.Listener) {
		l.OnError(&autostop.LimitError{Limit: autostop.ErrLowBattery, BatteryPct: 5, MinBatteryPct: 10})
	})
	h.svc.Close()

	require.Equal(t, []string{"Recording problem"}, h.notifier.summaries())
	assert.Contains(t, h.notifier.sent[0].Body, "low battery")
	_, stops := h.monitor.counts()
	assert.Equal(t, 1, stops)
}

func TestRecorderService_ScreenOff(t *testing.T) {
	h := newServiceHarness(t, config.Config{StopOnScreenOff: true})
	h.session.started = true

	h.screen.onScreenOff()
	h.svc.Close()

	assert.Equal(t, []error{nil}, h.session.autoStops)
}

func TestRecorderService_ScreenOffDisabled(t *testing.T) {
	h := newServiceHarness(t, config.Config{StopOnScreenOff: false})

	h.screen.onScreenOff()
	h.svc.Close()

	assert.Empty(t, h.session.autoStops)
}

func TestRecorderService_TrimCallbacks(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: true})
	callbacks := h.svc.TrimCallbacks()

	callbacks.OnSuccess(trim.Job{RecordingID: "rec-1", InputPath: "/v/a.mp4", OutputPath: "/v/a-edited.mp4"})
	callbacks.OnFailure(trim.Job{InputPath: "/v/b.mp4"}, trim.ErrInvalidRange)
	callbacks.OnFailure(trim.Job{InputPath: "/v/c.mp4"}, context.Canceled)
	h.svc.Close()

	assert.Equal(t, []scanCall{{path: "/v/a-edited.mp4", sourceID: "rec-1"}}, h.scanner.calls)
	assert.Equal(t, []string{"Trimmed recording saved", "Trimming failed"}, h.notifier.summaries())
}

func TestRecorderService_ScanFailureStillNotifies(t *testing.T) {
	h := newServiceHarness(t, config.Config{Notifications: true})
	h.scanner.err = errors.New("database locked")

	h.session.each(func(l capture.Listener) { l.OnStop("/videos/missing.mp4") })
	h.svc.Close()

	require.Equal(t, []string{"Recording saved"}, h.notifier.summaries())
	assert.Equal(t, "missing.mp4", h.notifier.sent[0].Body)
}

func TestIsScreenOff(t *testing.T) {
	assert.True(t, isScreenOff(&dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged", Body: []any{true}}))
	assert.True(t, isScreenOff(&dbus.Signal{Name: "org.gnome.ScreenSaver.ActiveChanged", Body: []any{true}}))
	assert.False(t, isScreenOff(&dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged", Body: []any{false}}))
	assert.False(t, isScreenOff(&dbus.Signal{Name: "org.freedesktop.Other.ActiveChanged", Body: []any{true}}))
	assert.False(t, isScreenOff(&dbus.Signal{Name: "org.freedesktop.ScreenSaver.ActiveChanged"}))
	assert.False(t, isScreenOff(nil))
}
