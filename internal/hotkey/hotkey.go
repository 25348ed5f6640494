// Package hotkey grabs optional global shortcuts and maps them to trigger
// names. Compositor keybindings that run `voicify-shell trigger` remain the
// primary path; this covers X11 sessions without them.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.design/x/hotkey"

	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/session"
)

// Binding ties one shortcut to one trigger name.
type Binding struct {
	Trigger string
	Combo   string
}

// Shortcut is a parsed key combination.
type Shortcut struct {
	Mods []hotkey.Modifier
	Key  hotkey.Key
	Text string
}

// Grab is one registered shortcut.
type Grab interface {
	Keydown() <-chan hotkey.Event
	Unregister() error
}

// Registrar grabs a shortcut from the display server.
type Registrar func(Shortcut) (Grab, error)

// Bindings lists the configured shortcuts, skipping unset ones.
func Bindings(cfg config.HotkeyConfig) []Binding {
	all := []Binding{
		{Trigger: session.TriggerRealtime, Combo: cfg.Realtime},
		{Trigger: session.TriggerPostAutoPaste, Combo: cfg.PostAutoPaste},
		{Trigger: session.TriggerPostRouter, Combo: cfg.PostRouter},
		{Trigger: session.TriggerCancel, Combo: cfg.Cancel},
	}
	out := all[:0]
	for _, b := range all {
		if b.Combo = strings.TrimSpace(b.Combo); b.Combo != "" {
			out = append(out, b)
		}
	}
	return out
}

// Parse reads a combination like "ctrl+super+v". Modifiers come first and
// exactly one key ends the combination.
func Parse(combo string) (Shortcut, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) == 0 || strings.TrimSpace(parts[len(parts)-1]) == "" {
		return Shortcut{}, fmt.Errorf("shortcut %q has no key", combo)
	}

	var mods []hotkey.Modifier
	seen := make(map[string]bool)
	for _, raw := range parts[:len(parts)-1] {
		name := canonicalModifier(strings.TrimSpace(raw))
		mod, ok := modifiers[name]
		if !ok {
			return Shortcut{}, fmt.Errorf("shortcut %q: unknown modifier %q", combo, raw)
		}
		if seen[name] {
			return Shortcut{}, fmt.Errorf("shortcut %q: modifier %q repeated", combo, raw)
		}
		seen[name] = true
		mods = append(mods, mod)
	}

	keyName := strings.TrimSpace(parts[len(parts)-1])
	key, ok := keyFor(keyName)
	if !ok {
		return Shortcut{}, fmt.Errorf("shortcut %q: unknown key %q", combo, keyName)
	}
	return Shortcut{Mods: mods, Key: key, Text: strings.Join(parts, "+")}, nil
}

func canonicalModifier(name string) string {
	switch name {
	case "control", "ctl":
		return "ctrl"
	case "win", "cmd", "meta", "logo":
		return "super"
	case "option", "opt":
		return "alt"
	default:
		return name
	}
}

// Register grabs a shortcut through golang.design/x/hotkey.
func Register(s Shortcut) (Grab, error) {
	hk := hotkey.New(s.Mods, s.Key)
	if err := hk.Register(); err != nil {
		return nil, err
	}
	return hk, nil
}

// Listener fires triggers for grabbed shortcuts.
type Listener struct {
	bindings []Binding
	register Registrar
	logger   *slog.Logger
}

// NewListener builds a listener. A nil registrar uses Register.
func NewListener(bindings []Binding, register Registrar, logger *slog.Logger) *Listener {
	if register == nil {
		register = Register
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{bindings: bindings, register: register, logger: logger}
}

// Run grabs every binding and calls fire with the trigger name on each key
// press until ctx is done. Bindings that fail to parse or register are
// logged and skipped; Run fails only when none could be grabbed.
func (l *Listener) Run(ctx context.Context, fire func(trigger string)) error {
	var (
		grabs []Grab
		errs  []error
	)
	for _, b := range l.bindings {
		shortcut, err := Parse(b.Combo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		grab, err := l.register(shortcut)
		if err != nil {
			errs = append(errs, fmt.Errorf("grab %s for %s: %w", shortcut.Text, b.Trigger, err))
			continue
		}
		l.logger.Info("hotkey registered", "shortcut", shortcut.Text, "trigger", b.Trigger)
		grabs = append(grabs, grab)

		go forward(ctx, grab, b.Trigger, fire)
	}
	for _, err := range errs {
		l.logger.Warn("hotkey unavailable", "error", err.Error())
	}
	if len(grabs) == 0 {
		if len(errs) == 0 {
			return errors.New("no hotkeys configured")
		}
		return fmt.Errorf("no hotkeys registered: %w", errors.Join(errs...))
	}

	<-ctx.Done()
	for _, g := range grabs {
		if err := g.Unregister(); err != nil {
			l.logger.Debug("hotkey unregister failed", "error", err.Error())
		}
	}
	return nil
}

func forward(ctx context.Context, grab Grab, trigger string, fire func(string)) {
	keydown := grab.Keydown()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			fire(trigger)
		}
	}
}
