package session

import (
	"math"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/fsm"
)

// handleEvent applies one daemon event. Events the transition table rejects
// for the current phase are protocol violations and are dropped.
func (m *Machine) handleEvent(e bus.Event) {
	phase := m.sess.Phase

	switch e.Name {
	case bus.EventRecordingStarted:
		if phase.State == fsm.StateIdle && m.sess.Pending != fsm.ModeNone {
			m.confirmStart(m.sess.Pending)
			return
		}
		if _, err := fsm.Transition(phase, fsm.EventStarted, fsm.ModeNone); err != nil {
			m.reject(e, err)
		}

	case bus.EventTranscriptionReady:
		next, err := fsm.Transition(phase, fsm.EventTranscriptionReady, fsm.ModeNone)
		if err != nil {
			m.reject(e, err)
			return
		}
		if phase.Mode == fsm.ModePostAutoPaste && e.Text != "" {
			m.deliver(e.Text, "autopaste")
		}
		m.setPhase(next, ReasonFinished, "")
		m.after(m.settings.FinishDelay, m.sess.Generation, fsm.StateFinished, func() {
			id := m.sess.ID
			done, _ := fsm.Transition(next, fsm.EventFinalize, fsm.ModeNone)
			m.sess = Session{Phase: done, Generation: m.sess.Generation + 1}
			m.logger.Info("session complete", "session", id, "mode", string(next.Mode))
			m.observer.SessionChanged(Change{Before: next, After: done, Reason: ReasonCompleted, SessionID: id})
		})

	case bus.EventPartialTranscription:
		if phase != (fsm.Phase{State: fsm.StateRecording, Mode: fsm.ModeRealtime}) {
			m.drop(e)
			return
		}
		m.sess.Partial = e.Text
		m.observer.Partial(e.Text)

	case bus.EventCompleteTranscription:
		if phase != (fsm.Phase{State: fsm.StateRecording, Mode: fsm.ModeRealtime}) || e.Text == "" {
			m.drop(e)
			return
		}
		delta := e.Text + " "
		m.deliver(delta, "realtime")
		m.sess.Accumulated = append(m.sess.Accumulated, delta)
		if m.sess.Partial != "" {
			m.sess.Partial = ""
			m.observer.Partial("")
		}

	case bus.EventRecordingError:
		_ = m.reset(fsm.EventRecordingError, ReasonError, e.Text)

	case bus.EventRecordingCancelled:
		if err := m.reset(fsm.EventRecordingCancelled, ReasonCancelled, "daemon cancelled recording"); err != nil {
			m.reject(e, err)
		}

	case bus.EventInputLevel:
		if phase.State != fsm.StateRecording || math.IsNaN(e.Level) || math.IsInf(e.Level, 0) {
			m.drop(e)
			return
		}
		level := min(max(e.Level, 0), 1)
		m.sess.Level = level
		m.observer.InputLevel(level)

	case bus.EventRequestPaste:
		if e.Text == "" {
			m.drop(e)
			return
		}
		m.deliver(e.Text, "request_paste")

	case bus.EventServiceLost:
		_ = m.reset(fsm.EventReset, ReasonServiceLost, e.Text)

	default:
		m.drop(e)
	}
}

func (m *Machine) drop(e bus.Event) {
	m.logger.Debug("daemon event dropped",
		"event", e.Name,
		"phase", m.sess.Phase.String(),
		"pending", string(m.sess.Pending),
	)
}

// reject drops an event the transition table refused.
func (m *Machine) reject(e bus.Event, err error) {
	m.logger.Debug("daemon event dropped",
		"event", e.Name,
		"phase", m.sess.Phase.String(),
		"pending", string(m.sess.Pending),
		"error", err.Error(),
	)
}
