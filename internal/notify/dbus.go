package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the notification interface name.
	DBusInterface = "org.freedesktop.Notifications"
	// DBusPath is the notification object path.
	DBusPath = "/org/freedesktop/Notifications"
	// DBusBusName is the well-known name of the notification service.
	DBusBusName = "org.freedesktop.Notifications"
)

// Notification carries the raw parameters of an
// org.freedesktop.Notifications.Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Transport sends a notification to the display service and returns
// the id assigned to it.
type Transport interface {
	Notify(ctx context.Context, n Notification) (uint32, error)
}

// DBusTransport implements Transport over a private session bus
// connection, so the daemon owns the connection's lifetime and can
// tear it down unconditionally on exit.
type DBusTransport struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// NewDBusTransport connects to the session bus.
func NewDBusTransport(logger *slog.Logger) (*DBusTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session bus auth failed: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session bus hello failed: %w", err)
	}

	logger.Debug("connected to session bus", "service", DBusBusName)
	return &DBusTransport{conn: conn, logger: logger}, nil
}

// Notify calls org.freedesktop.Notifications.Notify and returns the
// notification id assigned by the service.
// D-Bus method: Notify(susssasa{sv}i) -> u
func (t *DBusTransport) Notify(ctx context.Context, n Notification) (uint32, error) {
	actions := n.Actions
	if actions == nil {
		actions = []string{}
	}
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	obj := t.conn.Object(DBusBusName, DBusPath)
	call := obj.CallWithContext(ctx, DBusInterface+".Notify", 0,
		n.AppName,
		n.ReplacesID,
		n.AppIcon,
		n.Summary,
		n.Body,
		actions,
		hints,
		n.ExpireTimeout,
	)
	if call.Err != nil {
		return 0, fmt.Errorf("Notify call failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("Notify returned unexpected reply: %w", err)
	}
	return id, nil
}

// Close closes the bus connection.
func (t *DBusTransport) Close() error {
	return t.conn.Close()
}
