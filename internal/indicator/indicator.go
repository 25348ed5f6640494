// Package indicator reflects session changes as notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/fsm"
	"github.com/rbright/voicify-shell/internal/hypr"
	"github.com/rbright/voicify-shell/internal/loop"
	"github.com/rbright/voicify-shell/internal/session"
)

const (
	colorRecording  = "rgb(89b4fa)"
	colorRealtime   = "rgb(a6e3a1)"
	colorProcessing = "rgb(cba6f7)"
	colorError      = "rgb(f38ba8)"

	persistentMS = 300000
	partialRunes = 80
)

// Notifier is the session observer that drives the visual indicator and
// sound cues. Observer callbacks only enqueue work; Run performs it.
type Notifier struct {
	logger  *slog.Logger
	worker  *loop.Loop
	desktop desktopBackend

	mu                    sync.Mutex
	cfg                   config.IndicatorConfig
	messages              messages
	desktopNotificationID uint32
	realtime              bool
	partial               string
	partialQueued         bool

	soundMu sync.Mutex
	// swappable for tests
	playCue func(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error

	ctx context.Context
}

var _ session.Observer = (*Notifier)(nil)

// NewNotifier creates an indicator from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		logger:   logger,
		worker:   loop.New(),
		desktop:  &sessionNotifications{},
		cfg:      cfg,
		messages: indicatorMessagesFromEnv().withOverrides(cfg),
		playCue:  emitCue,
		ctx:      context.Background(),
	}
}

// Configure applies reloaded indicator settings to later notifications.
func (n *Notifier) Configure(cfg config.IndicatorConfig) {
	n.mu.Lock()
	n.cfg = cfg
	n.messages = indicatorMessagesFromEnv().withOverrides(cfg)
	n.mu.Unlock()
}

// Run performs queued indicator work until ctx is done, then dismisses any
// visible notification.
func (n *Notifier) Run(ctx context.Context) error {
	n.ctx = ctx
	err := n.worker.Run(ctx)

	cleanup, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	n.hide(cleanup)
	if s, ok := n.desktop.(*sessionNotifications); ok {
		s.shutdown()
	}
	return err
}

// SessionChanged maps a session change to a notification and cue.
func (n *Notifier) SessionChanged(c session.Change) {
	n.worker.Post(func() { n.apply(c) })
}

// InputLevel is shown by the monitor only.
func (n *Notifier) InputLevel(float64) {}

// Partial updates the desktop notification with the latest realtime partial.
// Bursts collapse into one update.
func (n *Notifier) Partial(text string) {
	n.mu.Lock()
	n.partial = text
	queued := n.partialQueued
	n.partialQueued = true
	n.mu.Unlock()

	if !queued {
		n.worker.Post(n.flushPartial)
	}
}

func (n *Notifier) apply(c session.Change) {
	cfg, msg := n.settings()

	switch c.Reason {
	case session.ReasonStarted:
		realtime := c.After.Mode == fsm.ModeRealtime
		n.setRealtime(realtime)
		n.cue(cueStart)
		if realtime {
			n.show(1, persistentMS, colorRealtime, msg.realtime)
		} else {
			n.show(1, persistentMS, colorRecording, msg.recording)
		}

	case session.ReasonUploading:
		n.setRealtime(false)
		n.cue(cueStop)
		n.show(1, persistentMS, colorProcessing, msg.processing)

	case session.ReasonStopped:
		n.setRealtime(false)
		n.cue(cueStop)
		n.hide(n.ctx)

	case session.ReasonFinished:
		n.cue(cueComplete)
		n.hide(n.ctx)

	case session.ReasonCancelled:
		n.setRealtime(false)
		n.cue(cueCancel)
		n.hide(n.ctx)

	case session.ReasonError, session.ReasonCallFailed, session.ReasonServiceLost, session.ReasonTimeout:
		n.setRealtime(false)
		n.cue(cueError)
		text := strings.TrimSpace(c.Detail)
		if text == "" {
			text = msg.errorText
		}
		timeout := cfg.ErrorTimeoutMS
		if timeout <= 0 {
			timeout = 1200
		}
		n.show(3, timeout, colorError, text)
	}
}

func (n *Notifier) flushPartial() {
	n.mu.Lock()
	text := n.partial
	n.partialQueued = false
	realtime := n.realtime
	desktop := isDesktop(n.cfg)
	prefix := n.messages.realtime
	n.mu.Unlock()

	// hyprctl notifications stack instead of replacing, so partials are
	// only mirrored into a replaceable desktop notification
	if !realtime || !desktop {
		return
	}
	summary := prefix
	if text = strings.TrimSpace(text); text != "" {
		summary = prefix + " " + tail(text, partialRunes)
	}
	n.show(1, persistentMS, colorRealtime, summary)
}

func (n *Notifier) settings() (config.IndicatorConfig, messages) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg, n.messages
}

func (n *Notifier) setRealtime(on bool) {
	n.mu.Lock()
	n.realtime = on
	if !on {
		n.partial = ""
	}
	n.mu.Unlock()
}

// show dispatches indicator output through the configured backend.
func (n *Notifier) show(icon int, timeoutMS int, color string, text string) {
	cfg, _ := n.settings()
	if !cfg.Enable {
		return
	}
	n.run(n.ctx, func(ctx context.Context) error {
		if isDesktop(cfg) {
			return n.notifyDesktop(ctx, cfg, timeoutMS, text)
		}
		return hypr.Notify(ctx, icon, timeoutMS, color, text)
	})
}

// hide removes indicator output from the configured backend.
func (n *Notifier) hide(ctx context.Context) {
	cfg, _ := n.settings()
	if !cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		if isDesktop(cfg) {
			return n.dismissDesktop(ctx)
		}
		return hypr.DismissNotify(ctx)
	})
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, cfg config.IndicatorConfig, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(cfg.DesktopAppName)
	if appName == "" {
		appName = "voicify-shell"
	}

	id, err := n.desktop.Notify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return n.desktop.Close(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}

// cue serializes cue playback and emits audio off the worker.
func (n *Notifier) cue(kind cueKind) {
	cfg, _ := n.settings()
	if !cfg.SoundEnable {
		return
	}
	ctx := n.ctx
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.playCue(ctx, kind, cfg); err != nil {
			n.logger.Debug("indicator audio cue failed", "error", err.Error())
		}
	}()
}

func isDesktop(cfg config.IndicatorConfig) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop")
}

// tail keeps the last limit runes of text, marking the cut with an ellipsis.
func tail(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return "…" + string(runes[len(runes)-limit:])
}
