package fsm

import "fmt"

type State string

type Mode string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateUploading State = "uploading"
	StateFinished  State = "finished"
	// StateCanceled is part of the daemon vocabulary but never held locally;
	// cancellation resolves directly to StateIdle.
	StateCanceled State = "canceled"
)

const (
	ModeNone          Mode = ""
	ModeRealtime      Mode = "realtime"
	ModePostAutoPaste Mode = "post-autopaste"
	ModePostRouter    Mode = "post-router"
)

const (
	EventStart              Event = "start"
	EventStarted            Event = "recording-started"
	EventStop               Event = "stop"
	EventTranscriptionReady Event = "transcription-ready"
	EventFinalize           Event = "finalize"
	EventRecordingError     Event = "recording-error"
	EventRecordingCancelled Event = "recording-cancelled"
	EventCancel             Event = "cancel"
	EventReset              Event = "reset"
)

// Phase is the (state, mode) pair the session machine tracks.
type Phase struct {
	State State
	Mode  Mode
}

var Idle = Phase{State: StateIdle, Mode: ModeNone}

func (p Phase) String() string {
	if p.Mode == ModeNone {
		return string(p.State)
	}
	return string(p.State) + "/" + string(p.Mode)
}

// Valid reports whether p satisfies the session invariant: a mode is only
// carried by Recording, Uploading, or Finished.
func (p Phase) Valid() bool {
	switch p.State {
	case StateIdle, StateCanceled:
		return p.Mode == ModeNone
	case StateRecording, StateUploading, StateFinished:
		return p.Mode.Session()
	default:
		return false
	}
}

// Session reports whether m names a session-producing start operation.
func (m Mode) Session() bool {
	switch m {
	case ModeRealtime, ModePostAutoPaste, ModePostRouter:
		return true
	default:
		return false
	}
}

// Transition applies event to current. mode is the trigger's mode for
// EventStart and EventStop and is ignored for every other event.
func Transition(current Phase, event Event, mode Mode) (Phase, error) {
	switch event {
	case EventRecordingError, EventCancel, EventReset:
		return Idle, nil
	}

	switch current.State {
	case StateIdle:
		switch event {
		case EventStart:
			if !mode.Session() {
				return current, fmt.Errorf("start with unknown mode %q", mode)
			}
			return Phase{State: StateRecording, Mode: mode}, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStarted:
			return current, nil
		case EventStop:
			if mode != current.Mode {
				return current, invalidTransition(current, event)
			}
			if current.Mode == ModeRealtime {
				return Idle, nil
			}
			return Phase{State: StateUploading, Mode: current.Mode}, nil
		case EventRecordingCancelled:
			return Idle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateUploading:
		switch event {
		case EventTranscriptionReady:
			return Phase{State: StateFinished, Mode: current.Mode}, nil
		case EventRecordingCancelled:
			return Idle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinished:
		switch event {
		case EventFinalize:
			return Idle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current.State)
	}
}

func invalidTransition(current Phase, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
}
