package bus

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

const nameOwnerChanged = "org.freedesktop.DBus.NameOwnerChanged"

// decode maps a raw signal to an Event. Signals from other objects, unknown
// members, and malformed bodies are dropped.
func (c *Client) decode(sig *dbus.Signal) (Event, bool) {
	if sig == nil {
		return Event{}, false
	}

	if sig.Name == nameOwnerChanged {
		return c.decodeOwnerChange(sig)
	}

	if string(sig.Path) != c.cfg.Path {
		return Event{}, false
	}
	member, ok := strings.CutPrefix(sig.Name, c.cfg.Interface+".")
	if !ok {
		return Event{}, false
	}

	switch member {
	case EventRecordingStarted, EventRecordingCancelled:
		return Event{Name: member}, true
	case EventTranscriptionReady, EventPartialTranscription, EventCompleteTranscription,
		EventRecordingError, EventRequestPaste:
		text, ok := bodyString(sig.Body, 0)
		if !ok {
			c.logger.Debug("malformed daemon signal", "signal", member)
			return Event{}, false
		}
		return Event{Name: member, Text: text}, true
	case EventInputLevel:
		if len(sig.Body) == 0 {
			c.logger.Debug("malformed daemon signal", "signal", member)
			return Event{}, false
		}
		level, ok := sig.Body[0].(float64)
		if !ok {
			c.logger.Debug("malformed daemon signal", "signal", member)
			return Event{}, false
		}
		return Event{Name: member, Level: level}, true
	default:
		c.logger.Debug("unknown daemon signal", "signal", member)
		return Event{}, false
	}
}

func (c *Client) decodeOwnerChange(sig *dbus.Signal) (Event, bool) {
	name, ok1 := bodyString(sig.Body, 0)
	oldOwner, ok2 := bodyString(sig.Body, 1)
	newOwner, ok3 := bodyString(sig.Body, 2)
	if !ok1 || !ok2 || !ok3 || name != c.cfg.Service {
		return Event{}, false
	}

	if oldOwner == "" {
		c.logger.Info("daemon joined the bus", "service", name, "owner", newOwner)
		return Event{}, false
	}
	// A replaced owner is a different daemon process; the old session is gone.
	c.logger.Warn("daemon left the bus", "service", name, "owner", oldOwner, "new_owner", newOwner)
	return Event{Name: EventServiceLost, Text: "daemon left the bus"}, true
}

func bodyString(body []any, idx int) (string, bool) {
	if idx >= len(body) {
		return "", false
	}
	s, ok := body[idx].(string)
	return s, ok
}
