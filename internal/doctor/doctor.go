// Package doctor runs readiness diagnostics for config, the daemon, and desktop tools.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/focus"
	"github.com/rbright/voicify-shell/internal/hotkey"
	"github.com/rbright/voicify-shell/internal/indicator"
	"github.com/rbright/voicify-shell/internal/output"
)

const statusTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live lookups doctor performs. Nil fields use the real
// session bus and Pulse server.
type Probes struct {
	DaemonStatus func(ctx context.Context, cfg bus.Config) (bool, error)
	CueOutput    func() (indicator.CueOutput, error)
}

func (p Probes) withDefaults() Probes {
	if p.DaemonStatus == nil {
		p.DaemonStatus = func(ctx context.Context, cfg bus.Config) (bool, error) {
			return bus.Status(ctx, cfg, nil)
		}
	}
	if p.CueOutput == nil {
		p.CueOutput = indicator.ProbeCueOutput
	}
	return p
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, probes Probes) Report {
	probes = probes.withDefaults()
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("DBUS_SESSION_BUS_ADDRESS", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "session bus address is set", "DBUS_SESSION_BUS_ADDRESS is empty"))

	checks = append(checks, checkDaemon(ctx, bus.ConfigFrom(cfg.Config.Bus), probes.DaemonStatus))
	checks = append(checks, checkFocus(cfg.Config.Focus))
	checks = append(checks, checkClipboard(cfg.Config))

	if cfg.Config.Paste.Enable {
		checks = append(checks, checkPaste(cfg.Config))
	}

	if cfg.Config.Indicator.Enable && !strings.EqualFold(cfg.Config.Indicator.Backend, "desktop") {
		checks = append(checks, checkBinary("hyprctl", "hypr indicator requires hyprctl"))
	}
	if cfg.Config.Indicator.SoundEnable {
		checks = append(checks, checkCueOutput(probes.CueOutput))
	}

	if cfg.Config.Hotkeys.Enable {
		checks = append(checks, checkHotkeys(cfg.Config.Hotkeys)...)
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkDaemon asks the daemon for its recording status.
func checkDaemon(ctx context.Context, cfg bus.Config, status func(context.Context, bus.Config) (bool, error)) Check {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	name := "daemon"
	active, err := status(ctx, cfg)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s unreachable: %v", cfg.Service, err)}
	}
	state := "idle"
	if active {
		state = "recording"
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s reachable (%s)", cfg.Service, state)}
}

// checkFocus resolves the focus backend and the tool it shells out to.
func checkFocus(cfg config.FocusConfig) Check {
	reporter, err := focus.New(cfg.Backend, nil)
	if err != nil {
		return Check{Name: "focus", Pass: false, Message: err.Error()}
	}

	switch reporter.Backend() {
	case focus.BackendHypr:
		return renamed(checkBinary("hyprctl", "focus via hyprctl"), "focus")
	case focus.BackendX11:
		return renamed(checkBinary("xdotool", "focus via xdotool"), "focus")
	default:
		return Check{Name: "focus", Pass: true, Message: "focused window reporting disabled"}
	}
}

// checkClipboard validates the configured clipboard staging backend.
func checkClipboard(cfg config.Config) Check {
	if strings.EqualFold(cfg.ClipboardBackend, "native") {
		if clipboard.Unsupported {
			return Check{Name: "clipboard", Pass: false, Message: "no native clipboard utility found (xclip, xsel, or wl-clipboard)"}
		}
		return Check{Name: "clipboard", Pass: true, Message: "native clipboard available"}
	}
	return checkCommand(cfg.Clipboard.Argv, "clipboard_cmd")
}

// checkPaste validates the resolved paste path.
func checkPaste(cfg config.Config) Check {
	switch backend := output.ResolvePasteBackend(cfg); backend {
	case "command":
		return checkCommand(cfg.PasteCmd.Argv, "paste_cmd")
	case "hypr":
		return renamed(checkBinary("hyprctl", "paste via hyprctl sendshortcut"), "paste")
	case "keybd":
		if _, err := os.Stat("/dev/uinput"); err != nil {
			return Check{Name: "paste", Pass: false, Message: fmt.Sprintf("keybd paste needs /dev/uinput: %v", err)}
		}
		return Check{Name: "paste", Pass: true, Message: "synthetic Ctrl+V via /dev/uinput"}
	default:
		return Check{Name: "paste", Pass: true, Message: "paste disabled by paste.backend=" + backend}
	}
}

// checkCueOutput verifies that synthesized cues have somewhere to play.
func checkCueOutput(probe func() (indicator.CueOutput, error)) Check {
	out, err := probe()
	if err != nil {
		return Check{Name: "sound", Pass: false, Message: err.Error()}
	}
	return Check{Name: "sound", Pass: true, Message: fmt.Sprintf("cues play on %q", out.ID)}
}

// checkHotkeys parses every configured shortcut.
func checkHotkeys(cfg config.HotkeyConfig) []Check {
	bindings := hotkey.Bindings(cfg)
	if len(bindings) == 0 {
		return []Check{{Name: "hotkeys", Pass: false, Message: "hotkeys enabled but none configured"}}
	}

	checks := make([]Check, 0, len(bindings))
	for _, b := range bindings {
		name := "hotkey." + b.Trigger
		if _, err := hotkey.Parse(b.Combo); err != nil {
			checks = append(checks, Check{Name: name, Pass: false, Message: err.Error()})
			continue
		}
		checks = append(checks, Check{Name: name, Pass: true, Message: b.Combo})
	}
	return checks
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func renamed(check Check, name string) Check {
	check.Name = name
	return check
}
