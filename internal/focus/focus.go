// Package focus reports which window currently has keyboard focus.
package focus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voicify-shell/internal/hypr"
)

// Window identifies the focused window. Empty fields mean unknown.
type Window struct {
	Title string
	AppID string
}

type Backend string

const (
	BackendAuto Backend = "auto"
	BackendHypr Backend = "hypr"
	BackendX11  Backend = "x11"
	BackendNone Backend = "none"
)

const defaultTimeout = 400 * time.Millisecond

// Reporter snapshots the focused window through one resolved backend.
type Reporter struct {
	backend Backend
	logger  *slog.Logger
	timeout time.Duration
	query   func(context.Context) (Window, error)
}

// New resolves backend ("auto" probes Hyprland, then X11) and returns a
// reporter bound to it.
func New(backend string, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	resolved := Backend(strings.ToLower(strings.TrimSpace(backend)))
	if resolved == "" {
		resolved = BackendAuto
	}
	if resolved == BackendAuto {
		resolved = detect()
	}

	r := &Reporter{backend: resolved, logger: logger, timeout: defaultTimeout}
	switch resolved {
	case BackendHypr:
		r.query = queryHypr
	case BackendX11:
		r.query = queryX11
	case BackendNone:
		r.query = func(context.Context) (Window, error) { return Window{}, nil }
	default:
		return nil, fmt.Errorf("unsupported focus backend %q", backend)
	}
	return r, nil
}

// Backend returns the resolved backend.
func (r *Reporter) Backend() Backend {
	return r.backend
}

// Snapshot never fails: lookup errors are logged and yield an empty Window.
func (r *Reporter) Snapshot(ctx context.Context) Window {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	window, err := r.query(ctx)
	if err != nil {
		r.logger.Debug("focus lookup failed", "backend", string(r.backend), "error", err.Error())
		return Window{}
	}
	return window
}

func detect() Backend {
	if hypr.Available() {
		return BackendHypr
	}
	if strings.TrimSpace(os.Getenv("DISPLAY")) != "" {
		if _, err := exec.LookPath("xdotool"); err == nil {
			return BackendX11
		}
	}
	return BackendNone
}

func queryHypr(ctx context.Context) (Window, error) {
	window, err := hypr.QueryActiveWindow(ctx)
	if err != nil {
		return Window{}, err
	}
	return Window{Title: window.Title, AppID: window.AppID()}, nil
}

func queryX11(ctx context.Context) (Window, error) {
	id, err := xdotool(ctx, "getactivewindow")
	if err != nil {
		return Window{}, err
	}
	if id == "" {
		return Window{}, fmt.Errorf("xdotool returned no active window")
	}

	title, err := xdotool(ctx, "getwindowname", id)
	if err != nil {
		return Window{}, err
	}
	class, err := xdotool(ctx, "getwindowclassname", id)
	if err != nil {
		return Window{Title: title}, nil
	}
	return Window{Title: title, AppID: class}, nil
}

func xdotool(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "xdotool", args...).Output()
	if err != nil {
		return "", fmt.Errorf("xdotool %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
