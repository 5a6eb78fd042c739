package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = notificationsName + ".Notify"

	// expireTimeout is how long a notification stays visible, in ms.
	expireTimeout int32 = 3000
)

// caller is the part of dbus.BusObject used to send notifications.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Desktop shows events as desktop notifications through the freedesktop
// notification service. Each notification replaces the previous one so
// rapid switches do not stack.
type Desktop struct {
	appName string
	obj     caller
	conn    *dbus.Conn
	logger  *slog.Logger

	lastID uint32
}

// NewDesktop connects to the session bus.
func NewDesktop(appName string, logger *slog.Logger) (*Desktop, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{
		appName: appName,
		obj:     conn.Object(notificationsName, notificationsPath),
		conn:    conn,
		logger:  logger,
	}, nil
}

// Notify shows a single event.
func (d *Desktop) Notify(ev Event) error {
	var id uint32
	call := d.obj.Call(notificationsNotify, 0,
		d.appName,
		d.lastID,
		"input-gaming",
		d.appName,
		ev.Summary(),
		[]string{},
		map[string]dbus.Variant{},
		expireTimeout,
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify %s: %w", ev.Kind(), err)
	}
	d.lastID = id
	return nil
}

// Run shows every event received from events until ctx is done or the
// channel closes.
func (d *Desktop) Run(ctx context.Context, events <-chan Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			if err := d.Notify(env.Event); err != nil {
				d.logger.Debug("desktop notification failed", "error", err)
			}
		}
	}
}

// Close releases the bus connection.
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
