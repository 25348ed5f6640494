// Package session owns the client-side dictation session: it validates user
// triggers and daemon events against the current phase, issues daemon calls,
// and applies their outcomes on a single loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/debounce"
	"github.com/rbright/voicify-shell/internal/fsm"
	"github.com/rbright/voicify-shell/internal/ipc"
	"github.com/rbright/voicify-shell/internal/loop"
)

// User trigger names.
const (
	TriggerRealtime      = "realtime-toggle"
	TriggerPostAutoPaste = "post-autopaste-toggle"
	TriggerPostRouter    = "post-router-toggle"
	TriggerCancel        = "cancel"
)

// Triggers lists every accepted trigger name.
var Triggers = []string{TriggerRealtime, TriggerPostAutoPaste, TriggerPostRouter, TriggerCancel}

// ErrUnknownTrigger is returned for trigger names outside Triggers.
var ErrUnknownTrigger = errors.New("unknown trigger")

// Verdict is the immediate answer to a trigger.
type Verdict string

const (
	VerdictAccepted  Verdict = "accepted"
	VerdictDebounced Verdict = "debounced"
	VerdictIgnored   Verdict = "ignored"
	VerdictRejected  Verdict = "rejected"
)

// Session is the single mutable record owned by the machine.
type Session struct {
	Phase fsm.Phase
	// Pending is the mode of a start call in flight while Phase is still idle.
	Pending     fsm.Mode
	Accumulated []string
	Partial     string
	Level       float64
	Generation  uint64
	ID          string
}

// Settings are the session timings. A zero DebounceWindow disables
// debouncing and a zero FinishDelay finalizes on the next timer tick.
type Settings struct {
	DebounceWindow time.Duration
	FinishDelay    time.Duration
	UploadTimeout  time.Duration
	CancelOrphaned bool
}

// DefaultSettings mirrors the desktop front-end timings.
func DefaultSettings() Settings {
	return Settings{
		DebounceWindow: debounce.DefaultWindow,
		FinishDelay:    900 * time.Millisecond,
		UploadTimeout:  2 * time.Minute,
	}
}

// Deps are the collaborators of a Machine. Loop and Transport are required.
type Deps struct {
	Logger    *slog.Logger
	Loop      Loop
	Transport Transport
	Sink      Sink
	Focus     FocusReporter
	Scheduler Scheduler
	Observer  Observer
	Now       func() time.Time
	// Calls runs blocking call chains off the loop, one at a time in issue
	// order. When nil the machine keeps its own worker, driven by Run.
	Calls loop.Poster
}

// Machine is the session state machine. Every method except Trigger,
// Snapshot, Handle, and Attach must run on the loop.
type Machine struct {
	logger    *slog.Logger
	loop      Loop
	transport Transport
	sink      Sink
	focus     FocusReporter
	sched     Scheduler
	observer  Observer
	now       func() time.Time
	calls     loop.Poster
	worker    *loop.Loop
	settings  Settings
	gate      *debounce.Gate

	base context.Context
	sess Session
}

// NewMachine builds a machine in Idle with safe fallbacks for optional deps.
func NewMachine(deps Deps, settings Settings) *Machine {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Sink == nil {
		deps.Sink = noopSink{}
	}
	if deps.Focus == nil {
		deps.Focus = noopFocus{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = wallScheduler{}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	var worker *loop.Loop
	if deps.Calls == nil {
		worker = loop.New()
		deps.Calls = worker
	}
	def := DefaultSettings()
	if settings.DebounceWindow < 0 {
		settings.DebounceWindow = 0
	}
	if settings.FinishDelay < 0 {
		settings.FinishDelay = def.FinishDelay
	}
	if settings.UploadTimeout <= 0 {
		settings.UploadTimeout = def.UploadTimeout
	}

	return &Machine{
		logger:    deps.Logger,
		loop:      deps.Loop,
		transport: deps.Transport,
		sink:      deps.Sink,
		focus:     deps.Focus,
		sched:     deps.Scheduler,
		observer:  deps.Observer,
		now:       deps.Now,
		calls:     deps.Calls,
		worker:    worker,
		settings:  settings,
		gate:      debounce.NewGate(settings.DebounceWindow),
		base:      context.Background(),
		sess:      Session{Phase: fsm.Idle},
	}
}

// Attach binds ctx as the parent of every daemon call and routes daemon
// events from sub onto the loop. Call it once before the loop runs.
func (m *Machine) Attach(ctx context.Context, sub Subscriber) {
	m.base = ctx
	for _, name := range []string{
		bus.EventRecordingStarted,
		bus.EventTranscriptionReady,
		bus.EventPartialTranscription,
		bus.EventCompleteTranscription,
		bus.EventRecordingError,
		bus.EventRecordingCancelled,
		bus.EventInputLevel,
		bus.EventRequestPaste,
		bus.EventServiceLost,
	} {
		sub.Subscribe(name, func(e bus.Event) {
			m.loop.Post(func() { m.handleEvent(e) })
		})
	}
	sub.OnConnect(func() {
		m.loop.Post(m.syncDaemonStatus)
	})
}

// Run sends queued daemon calls until ctx is done. It is a no-op wait when
// Deps.Calls was supplied by the caller.
func (m *Machine) Run(ctx context.Context) error {
	if m.worker == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.worker.Run(ctx)
}

// Trigger applies a named user trigger on the loop.
func (m *Machine) Trigger(ctx context.Context, name string) (Verdict, error) {
	var (
		verdict Verdict
		err     error
	)
	if doErr := m.loop.Do(ctx, func() { verdict, err = m.trigger(name) }); doErr != nil {
		return VerdictRejected, doErr
	}
	return verdict, err
}

// Snapshot returns a copy of the session taken on the loop.
func (m *Machine) Snapshot(ctx context.Context) (Session, error) {
	var snap Session
	err := m.loop.Do(ctx, func() { snap = m.snapshot() })
	return snap, err
}

// Handle serves owner IPC commands.
func (m *Machine) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		snap, err := m.Snapshot(ctx)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		return responseFor(snap, ipc.Response{OK: true, Message: "status"})
	case ipc.CommandTrigger:
		var (
			verdict Verdict
			snap    Session
			trigErr error
		)
		err := m.loop.Do(ctx, func() {
			verdict, trigErr = m.trigger(req.Trigger)
			snap = m.snapshot()
		})
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		resp := responseFor(snap, ipc.Response{OK: trigErr == nil, Verdict: string(verdict)})
		if trigErr != nil {
			resp.Error = trigErr.Error()
		}
		return resp
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func responseFor(snap Session, resp ipc.Response) ipc.Response {
	resp.State = string(snap.Phase.State)
	resp.Mode = string(snap.Phase.Mode)
	resp.Partial = snap.Partial
	resp.Level = snap.Level
	resp.Session = snap.ID
	if snap.Pending != fsm.ModeNone {
		resp.Mode = string(snap.Pending)
		resp.Message = "starting"
	}
	return resp
}

func (m *Machine) snapshot() Session {
	snap := m.sess
	snap.Accumulated = append([]string(nil), m.sess.Accumulated...)
	return snap
}

// ModeForTrigger maps a toggle trigger to the mode it starts.
func ModeForTrigger(name string) (fsm.Mode, bool) {
	switch name {
	case TriggerRealtime:
		return fsm.ModeRealtime, true
	case TriggerPostAutoPaste:
		return fsm.ModePostAutoPaste, true
	case TriggerPostRouter:
		return fsm.ModePostRouter, true
	default:
		return fsm.ModeNone, false
	}
}

func (m *Machine) trigger(name string) (Verdict, error) {
	mode, toggle := ModeForTrigger(name)
	if !toggle && name != TriggerCancel {
		return VerdictRejected, fmt.Errorf("%w %q", ErrUnknownTrigger, name)
	}
	if !m.gate.Allow(name, m.now()) {
		m.logger.Debug("trigger debounced", "trigger", name, "window_ms", m.gate.Window().Milliseconds())
		return VerdictDebounced, nil
	}

	if name == TriggerCancel {
		m.cancel()
		return VerdictAccepted, nil
	}

	phase := m.sess.Phase
	switch {
	case phase.State == fsm.StateIdle && m.sess.Pending == fsm.ModeNone:
		m.start(mode)
		return VerdictAccepted, nil
	case phase.State == fsm.StateRecording && phase.Mode == mode:
		m.stop()
		return VerdictAccepted, nil
	default:
		m.logger.Info("trigger ignored",
			"trigger", name,
			"phase", phase.String(),
			"pending", string(m.sess.Pending),
		)
		return VerdictIgnored, nil
	}
}

func (m *Machine) start(mode fsm.Mode) {
	m.sess = Session{
		Phase:      fsm.Idle,
		Pending:    mode,
		Generation: m.sess.Generation + 1,
		ID:         uuid.NewString(),
	}
	gen := m.sess.Generation
	m.logger.Info("session start requested", "session", m.sess.ID, "mode", string(mode))

	m.issue(startOp(mode), true, func(o bus.Outcome) { m.applyStartOutcome(gen, mode, o) })
}

func (m *Machine) confirmStart(mode fsm.Mode) {
	next, err := fsm.Transition(m.sess.Phase, fsm.EventStart, mode)
	if err != nil {
		m.logger.Debug("start confirmation dropped", "error", err.Error())
		return
	}
	m.sess.Pending = fsm.ModeNone
	m.setPhase(next, ReasonStarted, "")
}

func (m *Machine) stop() {
	before := m.sess.Phase
	next, err := fsm.Transition(before, fsm.EventStop, before.Mode)
	if err != nil {
		m.logger.Debug("stop dropped", "error", err.Error())
		return
	}

	if before.Mode == fsm.ModeRealtime {
		_ = m.reset(fsm.EventStop, ReasonStopped, "")
		m.issue(bus.OpCancelRecording, true, m.logOutcome)
		return
	}

	m.setPhase(next, ReasonUploading, "")
	gen := m.sess.Generation
	m.after(m.settings.UploadTimeout, gen, fsm.StateUploading, func() {
		m.logger.Warn("transcription did not arrive in time", "session", m.sess.ID)
		_ = m.reset(fsm.EventReset, ReasonTimeout, "transcription timed out")
	})
	m.issue(startOp(before.Mode), true, func(o bus.Outcome) { m.applyStopOutcome(gen, o) })
}

// cancel is optimistic: the session is idle before the daemon acknowledges.
func (m *Machine) cancel() {
	_ = m.reset(fsm.EventCancel, ReasonCancelled, "")
	m.issue(bus.OpCancelRecording, true, m.logOutcome)
}

// reset applies an event that ends the session, returning to Idle/None and
// advancing the generation so every timer and outcome of the previous session
// becomes a no-op. The session is left untouched when the table rejects event.
func (m *Machine) reset(event fsm.Event, reason Reason, detail string) error {
	before := m.sess.Phase
	hadPending := m.sess.Pending != fsm.ModeNone
	id := m.sess.ID

	next, err := fsm.Transition(before, event, before.Mode)
	if err != nil {
		return err
	}
	m.sess = Session{Phase: next, Generation: m.sess.Generation + 1}

	if before == fsm.Idle && !hadPending {
		return nil
	}
	m.logger.Info("session reset", "session", id, "from", before.String(), "reason", string(reason), "detail", detail)
	m.observer.SessionChanged(Change{Before: before, After: next, Reason: reason, SessionID: id, Detail: detail})
	return nil
}

func (m *Machine) setPhase(next fsm.Phase, reason Reason, detail string) {
	before := m.sess.Phase
	m.sess.Phase = next
	if before == next {
		return
	}
	m.logger.Info("session phase", "session", m.sess.ID, "from", before.String(), "to", next.String(), "reason", string(reason))
	m.observer.SessionChanged(Change{Before: before, After: next, Reason: reason, SessionID: m.sess.ID, Detail: detail})
}

func (m *Machine) deliver(text string, source string) {
	m.logger.Info("delivering text", "session", m.sess.ID, "source", source, "chars", len(text))
	m.sink.Submit(text)
}

// after schedules fn on the loop; it only runs while the session is still in
// generation gen and state want.
func (m *Machine) after(d time.Duration, gen uint64, want fsm.State, fn func()) {
	m.sched.AfterFunc(d, func() {
		m.loop.Post(func() {
			if m.sess.Generation != gen || m.sess.Phase.State != want {
				return
			}
			fn()
		})
	})
}

func startOp(mode fsm.Mode) bus.Op {
	switch mode {
	case fsm.ModeRealtime:
		return bus.OpStartRealtime
	case fsm.ModePostAutoPaste:
		return bus.OpTogglePostAutoPaste
	case fsm.ModePostRouter:
		return bus.OpTogglePostRouter
	default:
		return ""
	}
}
