package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// eventLog records calls made on fakes, in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type fakeToken struct {
	id      int
	log     *eventLog
	revoked chan struct{}
	once    sync.Once
	stopErr error

	mu      sync.Mutex
	stopped bool
}

func (t *fakeToken) Revoked() <-chan struct{} { return t.revoked }

func (t *fakeToken) Stop() error {
	t.log.add("token%d.stop", t.id)
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.revoke()
	return t.stopErr
}

func (t *fakeToken) revoke() {
	t.once.Do(func() { close(t.revoked) })
}

func (t *fakeToken) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeDisplay struct {
	log *eventLog
}

func (d *fakeDisplay) Release() error {
	d.log.add("display.release")
	return nil
}

type fakeEncoder struct {
	log        *eventLog
	prepareErr error
	startErr   error
	pauseErr   error
	stopPanics bool

	mu       sync.Mutex
	file     string
	released bool
}

func (e *fakeEncoder) Prepare(outputFile string, settings Settings) error {
	e.log.add("encoder.prepare")
	if e.prepareErr != nil {
		return e.prepareErr
	}
	e.mu.Lock()
	e.file = outputFile
	e.mu.Unlock()
	return os.WriteFile(outputFile, []byte("header"), 0644)
}

func (e *fakeEncoder) Start() error {
	e.log.add("encoder.start")
	return e.startErr
}

func (e *fakeEncoder) Pause() error {
	e.log.add("encoder.pause")
	return e.pauseErr
}

func (e *fakeEncoder) Resume() error {
	e.log.add("encoder.resume")
	return nil
}

func (e *fakeEncoder) Stop() error {
	e.log.add("encoder.stop")
	if e.stopPanics {
		panic("encoder exploded")
	}
	return nil
}

func (e *fakeEncoder) Release() error {
	e.log.add("encoder.release")
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	return nil
}

func (e *fakeEncoder) isReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// fakePlatform keeps token requests pending until the test grants or denies them.
type fakePlatform struct {
	log           *eventLog
	supportsPause bool
	displayErr    error
	tokenStopErr  error

	mu       sync.Mutex
	pending  []func(TokenResult)
	contexts []context.Context
	tokens   []*fakeToken
}

func (p *fakePlatform) RequestToken(ctx context.Context, deliver func(TokenResult)) {
	p.log.add("platform.request")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, deliver)
	p.contexts = append(p.contexts, ctx)
}

func (p *fakePlatform) CreateDisplay(token Token, encoder Encoder, settings Settings) (Display, error) {
	p.log.add("platform.display")
	if p.displayErr != nil {
		return nil, p.displayErr
	}
	return &fakeDisplay{log: p.log}, nil
}

func (p *fakePlatform) SupportsPause() bool { return p.supportsPause }

func (p *fakePlatform) requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *fakePlatform) lastContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contexts[len(p.contexts)-1]
}

func (p *fakePlatform) takeRequest() func(TokenResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	deliver := p.pending[0]
	p.pending = p.pending[1:]
	return deliver
}

// grant answers the oldest pending request with a new token.
func (p *fakePlatform) grant() *fakeToken {
	deliver := p.takeRequest()
	if deliver == nil {
		return nil
	}
	p.mu.Lock()
	token := &fakeToken{id: len(p.tokens), log: p.log, revoked: make(chan struct{}), stopErr: p.tokenStopErr}
	p.tokens = append(p.tokens, token)
	p.mu.Unlock()

	deliver(TokenResult{Token: token})
	return token
}

func (p *fakePlatform) deny(err error) bool {
	deliver := p.takeRequest()
	if deliver == nil {
		return false
	}
	deliver(TokenResult{Err: err})
	return true
}

func (p *fakePlatform) liveTokens() []*fakeToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	var live []*fakeToken
	for _, t := range p.tokens {
		if !t.isStopped() {
			live = append(live, t)
		}
	}
	return live
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// fire runs timer i regardless of whether it was stopped, like a timer racing its Stop.
func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	c.mu.Unlock()
	t.fn()
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// eventRecorder is a Listener collecting events as strings.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
	files  []string
}

func (r *eventRecorder) listener() Listener {
	return Listener{
		OnStart: func() { r.add("start") },
		OnStop: func(file string) {
			r.mu.Lock()
			r.files = append(r.files, file)
			r.mu.Unlock()
			r.add("stop")
		},
		OnCancel: func() { r.add("cancel") },
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *eventRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *eventRecorder) lastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *eventRecorder) lastFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.files) == 0 {
		return ""
	}
	return r.files[len(r.files)-1]
}

var errBoom = errors.New("boom")
