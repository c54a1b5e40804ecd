// Package notifications shows desktop notifications about recordings.
package notifications

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/yeti47/screenrec/ccc/logging"
)

const (
	notificationsBus   = "org.freedesktop.Notifications"
	notificationsPath  = "/org/freedesktop/Notifications"
	notificationsIface = "org.freedesktop.Notifications"

	appName       = "screenrec"
	expireDefault = int32(-1)
)

type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification is one message for the user.
type Notification struct {
	Summary string
	Body    string
	Urgency Urgency
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) error { return nil }

// NopNotifier drops every notification.
var NopNotifier Notifier = nopNotifier{}

// DesktopNotifier sends notifications over the session bus.
type DesktopNotifier struct {
	logger logging.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDesktopNotifier creates a notifier that connects to the session bus on first use.
func NewDesktopNotifier(logger logging.Logger) *DesktopNotifier {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &DesktopNotifier{logger: logger}
}

func (d *DesktopNotifier) connection() (*dbus.Conn, error) {
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DesktopNotifier) Notify(n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connection()
	if err != nil {
		return err
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}

	var id uint32
	call := conn.Object(notificationsBus, notificationsPath).Call(notificationsIface+".Notify", 0,
		appName, uint32(0), "media-record", n.Summary, n.Body, []string{}, hints, expireDefault)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	d.logger.Debug("Notification sent", "id", id, "summary", n.Summary)
	return nil
}

// Close closes the session bus connection if one was opened.
func (d *DesktopNotifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
