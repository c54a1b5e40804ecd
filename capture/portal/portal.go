// Package portal obtains screen capture grants from xdg-desktop-portal over D-Bus
// and binds the resulting PipeWire stream into a recording encoder.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/yeti47/screenrec/capture"
	"github.com/yeti47/screenrec/ccc/logging"
)

const (
	portalBus  = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"

	sourceMonitor  = uint32(1)
	cursorEmbedded = uint32(2)

	responseSuccess   = uint32(0)
	responseCancelled = uint32(1)

	// the user may take a while to pick a screen
	responseTimeout = 2 * time.Minute
)

var _ capture.Platform = (*Platform)(nil)

// sourceBinder is implemented by encoders that read a PipeWire stream directly.
type sourceBinder interface {
	BindSource(fd int, nodeID uint32) error
}

// Platform implements capture.Platform on top of the ScreenCast portal.
type Platform struct {
	logger logging.Logger
	conn   *dbus.Conn
	seq    atomic.Uint64
}

// Connect opens the session bus and checks that the portal service answers.
func Connect(logger logging.Logger) (*Platform, error) {
	if logger == nil {
		logger = logging.NopLogger
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	portalObj := conn.Object(portalBus, portalPath)
	if err := portalObj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("desktop portal not available: %w", err)
	}

	logger.Info("Connected to desktop portal")
	return &Platform{logger: logger, conn: conn}, nil
}

// Close closes the D-Bus connection.
func (p *Platform) Close() error {
	return p.conn.Close()
}

func (p *Platform) SupportsPause() bool {
	return true
}

// RequestToken runs the CreateSession, SelectSources and Start exchange in the background.
func (p *Platform) RequestToken(ctx context.Context, deliver func(capture.TokenResult)) {
	go func() {
		token, err := p.createSession(ctx)
		if err != nil {
			deliver(capture.TokenResult{Err: err})
			return
		}
		deliver(capture.TokenResult{Token: token})
	}()
}

func (p *Platform) CreateDisplay(token capture.Token, encoder capture.Encoder, settings capture.Settings) (capture.Display, error) {
	t, ok := token.(*Token)
	if !ok {
		return nil, fmt.Errorf("token %T was not issued by the desktop portal", token)
	}
	binder, ok := encoder.(sourceBinder)
	if !ok {
		return nil, fmt.Errorf("encoder %T cannot read a PipeWire stream", encoder)
	}

	fd, err := syscall.Dup(t.fd)
	if err != nil {
		return nil, fmt.Errorf("duplicate PipeWire fd: %w", err)
	}
	if err := binder.BindSource(fd, t.nodeID); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	p.logger.Debug("Virtual display bound", "node_id", t.nodeID, "fd", fd)
	return &display{fd: fd}, nil
}

func (p *Platform) createSession(ctx context.Context) (token *Token, err error) {
	sessionToken := p.nextToken("screenrec")

	results, err := p.request(ctx, "CreateSession", func(handleToken string) []any {
		return []any{map[string]dbus.Variant{
			"handle_token":         dbus.MakeVariant(handleToken),
			"session_handle_token": dbus.MakeVariant(sessionToken),
		}}
	})
	if err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}

	handle, ok := results["session_handle"].Value().(string)
	if !ok || handle == "" {
		return nil, fmt.Errorf("CreateSession returned no session handle")
	}
	session := dbus.ObjectPath(handle)

	defer func() {
		if err != nil {
			p.closeSession(session)
		}
	}()

	if _, err := p.request(ctx, "SelectSources", func(handleToken string) []any {
		return []any{session, map[string]dbus.Variant{
			"handle_token": dbus.MakeVariant(handleToken),
			"types":        dbus.MakeVariant(sourceMonitor),
			"cursor_mode":  dbus.MakeVariant(cursorEmbedded),
			"multiple":     dbus.MakeVariant(false),
		}}
	}); err != nil {
		return nil, fmt.Errorf("SelectSources: %w", err)
	}

	results, err = p.request(ctx, "Start", func(handleToken string) []any {
		return []any{session, "", map[string]dbus.Variant{
			"handle_token": dbus.MakeVariant(handleToken),
		}}
	})
	if err != nil {
		return nil, fmt.Errorf("Start: %w", err)
	}

	streams, ok := results["streams"]
	if !ok {
		return nil, fmt.Errorf("no streams in Start response")
	}
	nodeID, err := parseNodeID(streams.Value())
	if err != nil {
		return nil, err
	}

	var pipeWireFd dbus.UnixFD
	if err := p.conn.Object(portalBus, portalPath).Call(
		screenCastIface+".OpenPipeWireRemote", 0, session, map[string]dbus.Variant{},
	).Store(&pipeWireFd); err != nil {
		return nil, fmt.Errorf("OpenPipeWireRemote: %w", err)
	}

	token = newToken(p, session, nodeID, int(pipeWireFd))
	p.logger.Info("Screen capture granted", "session", handle, "node_id", nodeID)
	return token, nil
}

// request calls a portal method that answers through a Request object and waits for its Response.
func (p *Platform) request(ctx context.Context, method string, args func(handleToken string) []any) (map[string]dbus.Variant, error) {
	handleToken := p.nextToken("req")
	path := requestPath(p.conn.Names()[0], handleToken)

	// subscribe before calling so the response cannot be missed
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, fmt.Errorf("add signal match: %w", err)
	}
	defer p.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	)

	signals := make(chan *dbus.Signal, 10)
	p.conn.Signal(signals)
	defer p.conn.RemoveSignal(signals)

	var returned dbus.ObjectPath
	if err := p.conn.Object(portalBus, portalPath).Call(screenCastIface+"."+method, 0, args(handleToken)...).Store(&returned); err != nil {
		return nil, err
	}
	if returned != path {
		p.logger.Debug("Portal used a different request path", "expected", path, "returned", returned)
		path = returned
	}

	timeout := time.NewTimer(responseTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			p.conn.Object(portalBus, path).Call(requestIface+".Close", 0)
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("timeout waiting for portal response")
		case sig := <-signals:
			if sig.Path != path || sig.Name != requestIface+".Response" {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

func (p *Platform) closeSession(session dbus.ObjectPath) {
	if err := p.conn.Object(portalBus, session).Call(sessionIface+".Close", 0).Err; err != nil {
		p.logger.Debug("Failed to close portal session", "session", session, "error", err)
	}
}

func (p *Platform) nextToken(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), p.seq.Add(1))
}

// requestPath predicts the Request object path from the caller's unique bus name.
func requestPath(senderName, handleToken string) dbus.ObjectPath {
	sender := strings.TrimPrefix(senderName, ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", portalPath, sender, handleToken))
}

func parseResponse(body []any) (map[string]dbus.Variant, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("malformed portal response")
	}
	code, ok := body[0].(uint32)
	if !ok {
		return nil, fmt.Errorf("malformed portal response code %v", body[0])
	}
	switch code {
	case responseSuccess:
	case responseCancelled:
		return nil, capture.ErrPermissionDenied
	default:
		return nil, fmt.Errorf("portal request failed with response %d", code)
	}

	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return map[string]dbus.Variant{}, nil
	}
	return results, nil
}

// parseNodeID extracts the first PipeWire node from an a(ua{sv}) streams value.
func parseNodeID(streams any) (uint32, error) {
	var first []any
	switch v := streams.(type) {
	case [][]any:
		if len(v) > 0 {
			first = v[0]
		}
	case []any:
		if len(v) > 0 {
			if inner, ok := v[0].([]any); ok {
				first = inner
			} else {
				first = v
			}
		}
	}
	if len(first) == 0 {
		return 0, fmt.Errorf("no streams returned from portal")
	}
	nodeID, ok := first[0].(uint32)
	if !ok || nodeID == 0 {
		return 0, fmt.Errorf("failed to extract node ID from streams: %v", streams)
	}
	return nodeID, nil
}

// Token is an open portal ScreenCast session.
type Token struct {
	platform *Platform
	session  dbus.ObjectPath
	nodeID   uint32
	fd       int

	revoked  chan struct{}
	once     sync.Once
	stopOnce sync.Once
	signals  chan *dbus.Signal
}

func newToken(p *Platform, session dbus.ObjectPath, nodeID uint32, fd int) *Token {
	t := &Token{
		platform: p,
		session:  session,
		nodeID:   nodeID,
		fd:       fd,
		revoked:  make(chan struct{}),
		signals:  make(chan *dbus.Signal, 4),
	}

	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(session),
		dbus.WithMatchInterface(sessionIface),
		dbus.WithMatchMember("Closed"),
	); err != nil {
		p.logger.Warn("Cannot watch portal session, revocation will go unnoticed", "error", err)
	} else {
		p.conn.Signal(t.signals)
		go t.watch()
	}
	return t
}

func (t *Token) watch() {
	for {
		select {
		case sig := <-t.signals:
			if sig.Path == t.session && sig.Name == sessionIface+".Closed" {
				t.platform.logger.Info("Portal session closed", "session", t.session)
				t.revoke()
				return
			}
		case <-t.revoked:
			return
		}
	}
}

func (t *Token) revoke() {
	t.once.Do(func() { close(t.revoked) })
}

func (t *Token) Revoked() <-chan struct{} {
	return t.revoked
}

// Stop closes the portal session and the PipeWire remote.
func (t *Token) Stop() error {
	var result error
	t.stopOnce.Do(func() {
		t.revoke()
		t.platform.conn.RemoveSignal(t.signals)
		t.platform.conn.RemoveMatchSignal(
			dbus.WithMatchObjectPath(t.session),
			dbus.WithMatchInterface(sessionIface),
			dbus.WithMatchMember("Closed"),
		)

		var errs []error
		if err := t.platform.conn.Object(portalBus, t.session).Call(sessionIface+".Close", 0).Err; err != nil {
			errs = append(errs, fmt.Errorf("close portal session: %w", err))
		}
		if err := syscall.Close(t.fd); err != nil {
			errs = append(errs, fmt.Errorf("close PipeWire fd: %w", err))
		}
		result = errors.Join(errs...)
	})
	return result
}

// display owns the PipeWire fd handed to the encoder's source.
type display struct {
	fd   int
	once sync.Once
}

func (d *display) Release() error {
	var err error
	d.once.Do(func() {
		err = syscall.Close(d.fd)
	})
	return err
}
