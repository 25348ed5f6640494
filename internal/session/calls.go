package session

import (
	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/fsm"
)

// issue queues op on the call worker and posts its outcome back through
// apply. Chains run one at a time in issue order, so the daemon receives
// calls in the order the loop decided them. With pushFocus the focused window
// is sent first on the same chain.
func (m *Machine) issue(op bus.Op, pushFocus bool, apply func(bus.Outcome)) {
	ctx := m.base
	m.calls.Post(func() {
		if pushFocus {
			window := m.focus.Snapshot(ctx)
			if o := <-m.transport.Call(ctx, bus.OpUpdateFocusedWindow, window.Title, window.AppID); o.Err != nil {
				m.logger.Debug("focus update failed", "error", o.Err.Error())
			}
		}
		outcome := <-m.transport.Call(ctx, op)
		m.loop.Post(func() { apply(outcome) })
	})
}

func (m *Machine) applyStartOutcome(gen uint64, mode fsm.Mode, o bus.Outcome) {
	if gen != m.sess.Generation {
		// The daemon may now be recording for a session the user already
		// abandoned; stop it unless a newer session is in progress.
		if o.Err == nil && m.sess.Phase == fsm.Idle && m.sess.Pending == fsm.ModeNone {
			m.logger.Info("stale start succeeded; cancelling daemon recording", "op", string(o.Op))
			m.issue(bus.OpCancelRecording, false, m.logOutcome)
		}
		return
	}

	if o.Err != nil {
		m.logger.Warn("start call failed", "session", m.sess.ID, "op", string(o.Op), "kind", string(bus.KindOf(o.Err)), "error", o.Err.Error())
		_ = m.reset(fsm.EventReset, ReasonCallFailed, o.Err.Error())
		return
	}
	if m.sess.Pending == mode {
		m.confirmStart(mode)
	}
}

func (m *Machine) applyStopOutcome(gen uint64, o bus.Outcome) {
	if gen != m.sess.Generation {
		return
	}
	if o.Err != nil {
		m.logger.Warn("stop call failed", "session", m.sess.ID, "op", string(o.Op), "kind", string(bus.KindOf(o.Err)), "error", o.Err.Error())
		_ = m.reset(fsm.EventReset, ReasonCallFailed, o.Err.Error())
		return
	}
	m.logger.Debug("stop acknowledged", "session", m.sess.ID, "op", string(o.Op))
}

func (m *Machine) logOutcome(o bus.Outcome) {
	if o.Err != nil {
		m.logger.Warn("daemon call failed", "op", string(o.Op), "kind", string(bus.KindOf(o.Err)), "error", o.Err.Error())
		return
	}
	m.logger.Debug("daemon call acknowledged", "op", string(o.Op))
}

// syncDaemonStatus runs after every bus (re)connect and flags a daemon that
// is recording without a client session.
func (m *Machine) syncDaemonStatus() {
	m.issue(bus.OpGetStatus, false, func(o bus.Outcome) {
		if o.Err != nil {
			m.logger.Debug("daemon status unavailable", "error", o.Err.Error())
			return
		}
		if !o.Active || m.sess.Phase != fsm.Idle || m.sess.Pending != fsm.ModeNone {
			return
		}
		m.logger.Warn("daemon is recording without a client session")
		if m.settings.CancelOrphaned {
			m.issue(bus.OpCancelRecording, false, m.logOutcome)
		}
	})
}
