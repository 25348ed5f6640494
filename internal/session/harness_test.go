package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/focus"
	"github.com/rbright/voicify-shell/internal/fsm"
	"github.com/rbright/voicify-shell/internal/loop"
)

type transportCall struct {
	Op   bus.Op
	Args []any
}

// fakeTransport resolves every call immediately; failures are scripted per op.
type fakeTransport struct {
	mu     sync.Mutex
	calls  []transportCall
	fail   map[bus.Op]bus.Kind
	active bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[bus.Op]bus.Kind)}
}

func (f *fakeTransport) Call(_ context.Context, op bus.Op, args ...any) <-chan bus.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, transportCall{Op: op, Args: args})
	kind, failing := f.fail[op]
	active := f.active
	f.mu.Unlock()

	outcome := bus.Outcome{Op: op}
	if failing {
		outcome.Err = &bus.Failure{Kind: kind, Op: op, Err: errors.New("scripted failure")}
	} else if op == bus.OpGetStatus {
		outcome.Active = active
	}
	ch := make(chan bus.Outcome, 1)
	ch <- outcome
	return ch
}

func (f *fakeTransport) setFail(op bus.Op, kind bus.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind == "" {
		delete(f.fail, op)
		return
	}
	f.fail[op] = kind
}

func (f *fakeTransport) all() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.calls...)
}

// ops lists issued operations without the focus pushes.
func (f *fakeTransport) ops() []bus.Op {
	var ops []bus.Op
	for _, c := range f.all() {
		if c.Op != bus.OpUpdateFocusedWindow {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

func (f *fakeTransport) count(op bus.Op) int {
	n := 0
	for _, c := range f.all() {
		if c.Op == op {
			n++
		}
	}
	return n
}

type fakeSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *fakeSink) Submit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *fakeSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type fakeFocus struct{ window focus.Window }

func (f fakeFocus) Snapshot(context.Context) focus.Window { return f.window }

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) fire(t *fakeTimer) {
	t.fired = true
	t.fn()
}

type recordingObserver struct {
	changes  []Change
	levels   []float64
	partials []string
}

func (o *recordingObserver) SessionChanged(c Change) { o.changes = append(o.changes, c) }
func (o *recordingObserver) InputLevel(level float64) { o.levels = append(o.levels, level) }
func (o *recordingObserver) Partial(text string)      { o.partials = append(o.partials, text) }

func (o *recordingObserver) reasons() []Reason {
	out := make([]Reason, 0, len(o.changes))
	for _, c := range o.changes {
		out = append(out, c.Reason)
	}
	return out
}

type fakeSubscriber struct {
	handlers  map[string][]bus.Handler
	onConnect []func()
}

func (s *fakeSubscriber) Subscribe(name string, h bus.Handler) {
	if s.handlers == nil {
		s.handlers = make(map[string][]bus.Handler)
	}
	s.handlers[name] = append(s.handlers[name], h)
}

func (s *fakeSubscriber) OnConnect(fn func()) { s.onConnect = append(s.onConnect, fn) }

// harness drives a Machine by hand: the test goroutine is the loop, call
// chains are queued as tasks, and timers fire only when asked.
type harness struct {
	m     *Machine
	loop  *loop.Loop
	tr    *fakeTransport
	sink  *fakeSink
	sched *fakeScheduler
	obs   *recordingObserver
	sub   *fakeSubscriber
	now   time.Time
	tasks []func()
}

func newHarness() *harness {
	return newHarnessWith(DefaultSettings())
}

func newHarnessWith(settings Settings) *harness {
	h := &harness{
		loop:  loop.New(),
		tr:    newFakeTransport(),
		sink:  &fakeSink{},
		sched: &fakeScheduler{},
		obs:   &recordingObserver{},
		sub:   &fakeSubscriber{},
		now:   time.Unix(1_700_000_000, 0),
	}
	h.m = NewMachine(Deps{
		Loop:      h.loop,
		Transport: h.tr,
		Sink:      h.sink,
		Focus:     fakeFocus{window: focus.Window{Title: "Editor", AppID: "code"}},
		Scheduler: h.sched,
		Observer:  h.obs,
		Now:       func() time.Time { return h.now },
		Calls:     taskQueue{h},
	}, settings)
	h.m.Attach(context.Background(), h.sub)
	return h
}

// taskQueue holds call chains until the test runs them.
type taskQueue struct{ h *harness }

func (q taskQueue) Post(fn func()) bool {
	q.h.tasks = append(q.h.tasks, fn)
	return true
}

// press applies a trigger without running the resulting call chain.
func (h *harness) press(name string) Verdict {
	v, _ := h.m.trigger(name)
	h.loop.Drain()
	return v
}

// trigger applies a trigger and settles every resulting call.
func (h *harness) trigger(name string) Verdict {
	v := h.press(name)
	h.settle()
	return v
}

func (h *harness) emit(e bus.Event) {
	for _, handler := range h.sub.handlers[e.Name] {
		handler(e)
	}
	h.loop.Drain()
}

func (h *harness) connect() {
	for _, fn := range h.sub.onConnect {
		fn()
	}
	h.loop.Drain()
}

// runNext runs the oldest queued call chain, as the call worker would.
func (h *harness) runNext() {
	fn := h.tasks[0]
	h.tasks = h.tasks[1:]
	fn()
	h.loop.Drain()
}

func (h *harness) settle() {
	for {
		ran := false
		for len(h.tasks) > 0 {
			h.runNext()
			ran = true
		}
		if h.loop.Drain() > 0 {
			ran = true
		}
		if !ran {
			return
		}
	}
}

func (h *harness) fireTimers() {
	for _, t := range h.sched.pending() {
		h.sched.fire(t)
		h.loop.Drain()
	}
	h.settle()
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) phase() fsm.Phase {
	return h.m.sess.Phase
}

// startSession starts mode and advances the clock past the debounce window.
func (h *harness) startSession(mode fsm.Mode) {
	h.trigger(triggerFor(mode))
	h.advance(time.Second)
}

func triggerFor(mode fsm.Mode) string {
	switch mode {
	case fsm.ModeRealtime:
		return TriggerRealtime
	case fsm.ModePostAutoPaste:
		return TriggerPostAutoPaste
	case fsm.ModePostRouter:
		return TriggerPostRouter
	default:
		return TriggerCancel
	}
}
