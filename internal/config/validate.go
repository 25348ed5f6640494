package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	focusBackends     = []string{"auto", "hypr", "x11", "none"}
	clipboardBackends = []string{"command", "native"}
	pasteBackends     = []string{"auto", "hypr", "keybd", "none"}
	indicatorBackends = []string{"hypr", "desktop"}
	logLevels         = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Bus.Service) == "" {
		return nil, fmt.Errorf("bus.service must not be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Bus.Path), "/") {
		return nil, fmt.Errorf("bus.path must start with '/'")
	}
	if strings.TrimSpace(cfg.Bus.Interface) == "" {
		return nil, fmt.Errorf("bus.interface must not be empty")
	}
	if cfg.Bus.CallTimeoutMS <= 0 {
		return nil, fmt.Errorf("bus.call_timeout_ms must be > 0")
	}
	if cfg.Bus.ReconnectMS <= 0 {
		return nil, fmt.Errorf("bus.reconnect_ms must be > 0")
	}

	if cfg.Session.DebounceMS < 0 {
		return nil, fmt.Errorf("session.debounce_ms must be >= 0")
	}
	if cfg.Session.FinishMS < 0 {
		return nil, fmt.Errorf("session.finish_ms must be >= 0")
	}
	if cfg.Session.UploadTimeoutMS <= 0 {
		return nil, fmt.Errorf("session.upload_timeout_ms must be > 0")
	}
	if cfg.Session.DebounceMS == 0 {
		warnings = append(warnings, Warning{Message: "session.debounce_ms=0 disables trigger debouncing"})
	}

	if err := oneOf("focus.backend", cfg.Focus.Backend, focusBackends); err != nil {
		return nil, err
	}

	if err := oneOf("clipboard.backend", cfg.ClipboardBackend, clipboardBackends); err != nil {
		return nil, err
	}
	if err := oneOf("paste.backend", cfg.Paste.Backend, pasteBackends); err != nil {
		return nil, err
	}
	if cfg.Paste.DelayMS < 0 {
		return nil, fmt.Errorf("paste.delay_ms must be >= 0")
	}
	commandWarnings, err := checkCommands(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, commandWarnings...)
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0 && strings.TrimSpace(cfg.Paste.Shortcut) == "" &&
		!strings.EqualFold(cfg.Paste.Backend, "none") && !strings.EqualFold(cfg.Paste.Backend, "keybd") {
		return nil, fmt.Errorf("paste.shortcut must not be empty when paste.enable=true and paste_cmd is unset")
	}

	if err := oneOf("indicator.backend", cfg.Indicator.Backend, indicatorBackends); err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.Indicator.Backend, "desktop") && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Hotkeys.Enable {
		bound := 0
		for _, combo := range []string{cfg.Hotkeys.Realtime, cfg.Hotkeys.PostAutoPaste, cfg.Hotkeys.PostRouter, cfg.Hotkeys.Cancel} {
			if strings.TrimSpace(combo) != "" {
				bound++
			}
		}
		if bound == 0 {
			warnings = append(warnings, Warning{Message: "hotkeys.enable=true but no shortcuts are configured"})
		}
	}

	if err := oneOf("log.level", cfg.Log.Level, logLevels); err != nil {
		return nil, err
	}

	return warnings, nil
}

func oneOf(key string, value string, allowed []string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of: %s", key, strings.Join(allowed, ", "))
	}
	return nil
}
