package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrNotConnected is wrapped by ConnectionLost failures issued while no bus
// connection is established.
var ErrNotConnected = errors.New("not connected to session bus")

// Kind classifies why a call failed.
type Kind string

const (
	ConnectionLost Kind = "connection_lost"
	RemoteRejected Kind = "remote_rejected"
	Timeout        Kind = "timeout"
)

// Failure is the typed error carried by a failed Outcome.
type Failure struct {
	Kind Kind
	Op   Op
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, or "" when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func classify(op Op, err error) *Failure {
	return &Failure{Kind: kindFor(err), Op: op, Err: err}
}

func kindFor(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled), errors.Is(err, dbus.ErrClosed), errors.Is(err, ErrNotConnected):
		return ConnectionLost
	}

	name, ok := dbusErrorName(err)
	if !ok {
		return ConnectionLost
	}
	switch name {
	case "org.freedesktop.DBus.Error.NoReply", "org.freedesktop.DBus.Error.Timeout", "org.freedesktop.DBus.Error.TimedOut":
		return Timeout
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.NoServer",
		"org.freedesktop.DBus.Error.Disconnected",
		"org.freedesktop.DBus.Error.Spawn.ChildExited",
		"org.freedesktop.DBus.Error.Spawn.Failed":
		return ConnectionLost
	default:
		return RemoteRejected
	}
}

func dbusErrorName(err error) (string, bool) {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name, true
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name, true
	}
	return "", false
}
