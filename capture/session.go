// Package capture implements the screen recording session: obtaining a capture grant,
// wiring a virtual display into an encoder, and pausing, stopping or discarding the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yeti47/screenrec/ccc/logging"
	"github.com/yeti47/screenrec/config"
	filemanagement "github.com/yeti47/screenrec/file-management"
)

const (
	outputFilePrefix = "screenrec"
	outputFileSuffix = ".mp4"
)

// Session is the recording state machine. All transitions run on one control goroutine;
// public methods hand their work to it and wait for the transition to finish.
type Session struct {
	logger     logging.Logger
	platform   Platform
	newEncoder EncoderFactory
	files      filemanagement.FileTracker
	settings   config.SettingsProvider[Settings]
	clock      Clock

	commands  chan func()
	async     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu    sync.RWMutex
	state sessionState

	listeners listeners

	// owned by the control goroutine
	deadlineTimer Timer
	deadlineGen   uint64
}

// NewSession creates an idle session and starts its control goroutine. Call Close to stop it.
func NewSession(logger logging.Logger, platform Platform, newEncoder EncoderFactory, files filemanagement.FileTracker, settings config.SettingsProvider[Settings]) *Session {
	return newSession(logger, platform, newEncoder, files, settings, realClock{})
}

func newSession(logger logging.Logger, platform Platform, newEncoder EncoderFactory, files filemanagement.FileTracker, settings config.SettingsProvider[Settings], clock Clock) *Session {
	if logger == nil {
		logger = logging.NopLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		logger:     logger,
		platform:   platform,
		newEncoder: newEncoder,
		files:      files,
		settings:   settings,
		clock:      clock,
		commands:   make(chan func()),
		async:      make(chan func(), 16),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
		state:      idle{},
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case fn := <-s.commands:
			fn()
		case fn := <-s.async:
			fn()
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

// shutdown keeps what was recorded so far and abandons a pending grant request.
func (s *Session) shutdown() {
	switch s.current().(type) {
	case recording, paused, awaitingToken:
		s.stop()
	}
}

// do runs fn on the control goroutine and waits for it. It reports false once the session is closed.
func (s *Session) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case s.commands <- func() { defer close(finished); fn() }:
	case <-s.quit:
		return false
	}
	<-finished
	return true
}

// post queues fn for the control goroutine without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.async <- fn:
	case <-s.quit:
	default:
		go func() {
			select {
			case s.async <- fn:
			case <-s.quit:
			}
		}()
	}
}

// Close stops an active recording (keeping its file) and ends the control goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelBase()
		close(s.quit)
	})
	<-s.done
}

// Subscribe registers l for session events and returns a function removing it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	return s.listeners.add(l)
}

func (s *Session) current() sessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st sessionState) {
	s.mu.Lock()
	previous := s.state
	s.state = st
	s.mu.Unlock()

	if previous.State() != st.State() {
		s.logger.Debug("Capture state changed", "from", previous.State().String(), "to", st.State().String())
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.current().State()
}

// Status returns the current state with its output file and timing.
func (s *Session) Status() Status {
	return statusOf(s.current())
}

// IsStarted reports whether a recording is in progress, paused or not.
func (s *Session) IsStarted() bool {
	switch s.current().(type) {
	case recording, paused:
		return true
	default:
		return false
	}
}

// IsPaused reports whether the recording is paused.
func (s *Session) IsPaused() bool {
	_, ok := s.current().(paused)
	return ok
}

// Start requests a capture grant. It does nothing unless the session is idle.
func (s *Session) Start() {
	s.do(s.start)
}

// OnTokenResult delivers the outcome of a grant request. It may be called from any goroutine.
func (s *Session) OnTokenResult(result TokenResult) {
	s.post(func() { s.onTokenResult(result) })
}

// Stop finishes the recording and emits a stop event with the file, or a cancel event
// when there is nothing to finish.
func (s *Session) Stop() {
	s.do(s.stop)
}

// Cancel discards the recording, deleting its file, and emits a cancel event.
func (s *Session) Cancel() {
	s.do(s.cancel)
}

// Pause pauses an active recording. It does nothing unless recording.
func (s *Session) Pause() {
	s.do(s.pause)
}

// Resume resumes a paused recording. It does nothing unless paused.
func (s *Session) Resume() {
	s.do(s.resume)
}

// AutoStop stops an active or paused recording and then emits reason as an error
// event when reason is not nil. It reports whether a recording was stopped.
func (s *Session) AutoStop(reason error) bool {
	stopped := false
	s.do(func() {
		switch s.current().(type) {
		case recording, paused:
		default:
			return
		}
		stopped = true
		s.stop()
		if reason != nil {
			s.emitError(reason)
		}
	})
	return stopped
}

func (s *Session) start() {
	if st := s.current(); st.State() != StateIdle {
		s.logger.Debug("Start ignored", "state", st.State().String())
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.setState(awaitingToken{cancel: cancel})
	s.logger.Info("Requesting screen capture permission")
	s.platform.RequestToken(ctx, s.OnTokenResult)
}

func (s *Session) onTokenResult(result TokenResult) {
	st, ok := s.current().(awaitingToken)
	if !ok {
		// the request was abandoned by stop or cancel
		if result.Token != nil {
			s.logger.Info("Releasing capture grant that arrived after the request was abandoned")
			s.safely("stop token", result.Token.Stop)
		}
		return
	}
	st.cancel()

	if result.Token == nil || result.Err != nil {
		if result.Token != nil {
			s.safely("stop token", result.Token.Stop)
		}
		s.setState(idle{})
		if result.Err == nil || errors.Is(result.Err, ErrPermissionDenied) {
			s.logger.Info("Screen capture permission denied")
			s.emitCancel()
			return
		}
		s.logger.Error("Screen capture request failed", "error", result.Err)
		s.emitError(result.Err)
		return
	}

	s.prepare(result.Token)
}

func (s *Session) prepare(token Token) {
	settings := s.settings.GetSettings()
	res := resources{token: token}

	file, err := s.files.NewOutputFile(settings.RecordingsFolder, outputFilePrefix, s.clock.Now(), outputFileSuffix)
	if err != nil {
		s.failSetup(res, fmt.Errorf("create output file: %w", err))
		return
	}
	res.outputFile = file
	s.setState(preparing{res: res})

	encoder := s.newEncoder()
	res.encoder = encoder
	if err := encoder.Prepare(file, settings); err != nil {
		s.failSetup(res, fmt.Errorf("prepare encoder: %w", err))
		return
	}

	display, err := s.platform.CreateDisplay(token, encoder, settings)
	if err != nil {
		s.failSetup(res, fmt.Errorf("create virtual display: %w", err))
		return
	}
	res.display = display

	if err := encoder.Start(); err != nil {
		s.failSetup(res, fmt.Errorf("start encoder: %w", err))
		return
	}

	res.startedAt = s.clock.Now()
	s.setState(recording{res: res, deadline: s.armDeadline(settings.MaxDuration)})
	s.watchRevocation(token)

	s.logger.Info("Recording started", "file", file)
	s.emitStart()
}

func (s *Session) failSetup(res resources, err error) {
	s.logger.Error("Failed to start recording", "error", err)
	s.teardown(res)
	s.files.DeleteFile(res.outputFile)
	s.setState(idle{})
	s.emitError(&SetupError{Err: err})
}

// watchRevocation turns a platform side end of the grant into a stop.
func (s *Session) watchRevocation(token Token) {
	go func() {
		select {
		case <-token.Revoked():
			s.post(func() { s.onRevoked(token) })
		case <-s.quit:
		}
	}()
}

func (s *Session) onRevoked(token Token) {
	var res resources
	switch st := s.current().(type) {
	case recording:
		res = st.res
	case paused:
		res = st.res
	default:
		return
	}
	if res.token != token {
		return
	}
	s.logger.Info("Screen capture ended by the platform")
	s.stop()
}

func (s *Session) stop() {
	switch st := s.current().(type) {
	case recording:
		s.finish(st.res, false)
	case paused:
		s.finish(st.res, false)
	case awaitingToken:
		st.cancel()
		s.setState(idle{})
		s.emitCancel()
	default:
		s.emitCancel()
	}
}

func (s *Session) cancel() {
	switch st := s.current().(type) {
	case recording:
		s.finish(st.res, true)
	case paused:
		s.finish(st.res, true)
	case awaitingToken:
		st.cancel()
		s.setState(idle{})
		s.emitCancel()
	default:
		s.emitCancel()
	}
}

// finish tears the recording down. A discarded recording has its file deleted before
// teardown and once more afterwards, since stopping the encoder may flush it back to disk.
func (s *Session) finish(res resources, discard bool) {
	s.clearDeadline()
	s.setState(stopping{res: res})

	if discard {
		s.files.DeleteFile(res.outputFile)
	}
	s.teardown(res)
	s.setState(idle{})

	if discard {
		s.files.DeleteFile(res.outputFile)
		s.logger.Info("Recording discarded", "file", res.outputFile)
		s.emitCancel()
		return
	}

	s.logger.Info("Recording stopped", "file", res.outputFile, "duration", s.clock.Now().Sub(res.startedAt).Round(time.Second).String())
	s.emitStop(res.outputFile)
}

// teardown releases whatever res holds. Every step runs even if earlier ones fail.
func (s *Session) teardown(res resources) {
	if res.token != nil {
		s.safely("stop token", res.token.Stop)
	}
	if res.encoder != nil {
		s.safely("stop encoder", res.encoder.Stop)
		s.safely("release encoder", res.encoder.Release)
	}
	if res.display != nil {
		s.safely("release display", res.display.Release)
	}
}

func (s *Session) safely(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Teardown step panicked", "step", step, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("Teardown step failed", "step", step, "error", err)
	}
}

func (s *Session) pause() {
	st, ok := s.current().(recording)
	if !ok {
		return
	}
	if !s.platform.SupportsPause() {
		s.emitError(fmt.Errorf("%w: pausing a recording", ErrUnsupportedOperation))
		return
	}
	if err := st.res.encoder.Pause(); err != nil {
		s.emitError(fmt.Errorf("pause recording: %w", err))
		return
	}
	s.setState(paused{res: st.res})
	s.logger.Info("Recording paused")
}

func (s *Session) resume() {
	st, ok := s.current().(paused)
	if !ok {
		return
	}
	if !s.platform.SupportsPause() {
		s.emitError(fmt.Errorf("%w: resuming a recording", ErrUnsupportedOperation))
		return
	}
	if err := st.res.encoder.Resume(); err != nil {
		s.emitError(fmt.Errorf("resume recording: %w", err))
		return
	}
	// paused time does not count, every resume gets the whole budget
	deadline := s.armDeadline(s.settings.GetSettings().MaxDuration)
	s.setState(recording{res: st.res, deadline: deadline})
	s.logger.Info("Recording resumed")
}

// armDeadline replaces the deadline timer and returns the deadline, zero when d is not positive.
// An expiry only stops a session that is recording at that moment.
func (s *Session) armDeadline(d time.Duration) time.Time {
	s.clearDeadline()
	if d <= 0 {
		return time.Time{}
	}

	gen := s.deadlineGen
	s.deadlineTimer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if gen != s.deadlineGen {
				return
			}
			if _, ok := s.current().(recording); !ok {
				return
			}
			s.logger.Info("Maximum recording duration reached", "max_duration", d.String())
			s.stop()
		})
	})
	return s.clock.Now().Add(d)
}

func (s *Session) clearDeadline() {
	s.deadlineGen++
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
		s.deadlineTimer = nil
	}
}

func (s *Session) emitStart() {
	for _, l := range s.listeners.snapshot() {
		if l.OnStart != nil {
			s.deliver("start", l.OnStart)
		}
	}
}

func (s *Session) emitStop(file string) {
	for _, l := range s.listeners.snapshot() {
		if l.OnStop != nil {
			s.deliver("stop", func() { l.OnStop(file) })
		}
	}
}

func (s *Session) emitCancel() {
	for _, l := range s.listeners.snapshot() {
		if l.OnCancel != nil {
			s.deliver("cancel", l.OnCancel)
		}
	}
}

func (s *Session) emitError(err error) {
	for _, l := range s.listeners.snapshot() {
		if l.OnError != nil {
			s.deliver("error", func() { l.OnError(err) })
		}
	}
}

func (s *Session) deliver(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session listener panicked", "event", event, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
