package indicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = "org.freedesktop.Notifications"
)

// desktopBackend is the freedesktop notification surface.
type desktopBackend interface {
	Notify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	Close(ctx context.Context, id uint32) error
}

// sessionNotifications talks to the notification server on the session bus.
// The connection is opened on first use and reopened after it drops.
type sessionNotifications struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (s *sessionNotifications) object() (dbus.BusObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.conn.Connected() {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		s.conn = conn
	}
	return s.conn.Object(notificationsService, notificationsPath), nil
}

// Notify sends a replaceable notification and returns the server-assigned ID.
func (s *sessionNotifications) Notify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	obj, err := s.object()
	if err != nil {
		return 0, err
	}

	call := obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		replaceID,
		"audio-input-microphone",
		summary,
		"",
		[]string{},
		map[string]dbus.Variant{"transient": dbus.MakeVariant(true)},
		int32(timeoutMS),
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}
	return id, nil
}

// Close requests explicit close by notification ID.
func (s *sessionNotifications) Close(ctx context.Context, id uint32) error {
	obj, err := s.object()
	if err != nil {
		return err
	}
	if err := obj.CallWithContext(ctx, notificationsInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

func (s *sessionNotifications) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
