package service

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/yeti47/screenrec/ccc/logging"
)

// ScreenWatcher calls onScreenOff whenever the screen locks or blanks, until ctx ends.
type ScreenWatcher interface {
	Watch(ctx context.Context, onScreenOff func()) error
}

var screenSaverInterfaces = []string{"org.freedesktop.ScreenSaver", "org.gnome.ScreenSaver"}

// ScreenSaverWatcher listens for ActiveChanged signals on the session bus.
type ScreenSaverWatcher struct {
	logger logging.Logger
}

func NewScreenSaverWatcher(logger logging.Logger) *ScreenSaverWatcher {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &ScreenSaverWatcher{logger: logger}
}

func (w *ScreenSaverWatcher) Watch(ctx context.Context, onScreenOff func()) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	for _, iface := range screenSaverInterfaces {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(iface),
			dbus.WithMatchMember("ActiveChanged"),
		); err != nil {
			return fmt.Errorf("add signal match for %s: %w", iface, err)
		}
	}

	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	w.logger.Debug("Watching screen saver")
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if isScreenOff(sig) {
				w.logger.Info("Screen turned off")
				onScreenOff()
			}
		}
	}
}

func isScreenOff(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) == 0 {
		return false
	}
	matched := false
	for _, iface := range screenSaverInterfaces {
		if sig.Name == iface+".ActiveChanged" {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	active, ok := sig.Body[0].(bool)
	return ok && active
}
