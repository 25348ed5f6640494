package session

import (
	"context"
	"time"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/focus"
	"github.com/rbright/voicify-shell/internal/fsm"
)

// Loop is the single logical thread every session mutation runs on.
type Loop interface {
	Post(fn func()) bool
	Do(ctx context.Context, fn func()) error
}

// Transport issues daemon calls; each returned channel yields one outcome.
type Transport interface {
	Call(ctx context.Context, op bus.Op, args ...any) <-chan bus.Outcome
}

// Subscriber delivers daemon events. *bus.Client implements it.
type Subscriber interface {
	Subscribe(name string, h bus.Handler)
	OnConnect(fn func())
}

// Sink accepts finalized text for delivery without blocking.
type Sink interface {
	Submit(text string)
}

// FocusReporter snapshots the focused window; it never fails.
type FocusReporter interface {
	Snapshot(ctx context.Context) focus.Window
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d on an arbitrary goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Reason labels why the session changed phase.
type Reason string

const (
	ReasonStarted     Reason = "started"
	ReasonStopped     Reason = "stopped"
	ReasonUploading   Reason = "uploading"
	ReasonFinished    Reason = "finished"
	ReasonCompleted   Reason = "completed"
	ReasonCancelled   Reason = "cancelled"
	ReasonError       Reason = "error"
	ReasonCallFailed  Reason = "call_failed"
	ReasonServiceLost Reason = "service_lost"
	ReasonTimeout     Reason = "timeout"
)

// Change describes one session phase change.
type Change struct {
	Before    fsm.Phase
	After     fsm.Phase
	Reason    Reason
	SessionID string
	Detail    string
}

// Observer reflects session activity. Calls arrive on the loop and must
// return promptly.
type Observer interface {
	SessionChanged(Change)
	InputLevel(level float64)
	Partial(text string)
}

type noopObserver struct{}

func (noopObserver) SessionChanged(Change) {}
func (noopObserver) InputLevel(float64)    {}
func (noopObserver) Partial(string)        {}

type noopSink struct{}

func (noopSink) Submit(string) {}

type noopFocus struct{}

func (noopFocus) Snapshot(context.Context) focus.Window { return focus.Window{} }

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Observers fans one notification out to several observers in order.
type Observers []Observer

func (o Observers) SessionChanged(c Change) {
	for _, obs := range o {
		obs.SessionChanged(c)
	}
}

func (o Observers) InputLevel(level float64) {
	for _, obs := range o {
		obs.InputLevel(level)
	}
}

func (o Observers) Partial(text string) {
	for _, obs := range o {
		obs.Partial(text)
	}
}
