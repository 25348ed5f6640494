// Package output stages delivered text in the clipboard and dispatches paste
// into the focused window.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/hypr"
)

// Status is the result of one delivery attempt.
type Status string

const (
	// Delivered means the text is staged and, when enabled, pasted.
	Delivered Status = "delivered"
	// DeliveryUnsupported means the text could not reach the focused window.
	// The clipboard may still hold it.
	DeliveryUnsupported Status = "unsupported"
)

const (
	clipboardTimeout = 2 * time.Second
	pasteCmdTimeout  = 2 * time.Second
	hyprPasteTimeout = 1200 * time.Millisecond
)

// Deliverer stages text and triggers paste according to the current config.
type Deliverer struct {
	logger *slog.Logger

	mu  sync.RWMutex
	cfg config.Config

	// swappable for tests
	writeNative func(string) error
	keyPaste    func() error
	hyprReady   func() bool
}

// NewDeliverer constructs a Deliverer from runtime config.
func NewDeliverer(cfg config.Config, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deliverer{
		logger:      logger,
		cfg:         cfg,
		writeNative: clipboard.WriteAll,
		keyPaste:    sendCtrlV,
		hyprReady:   hypr.Available,
	}
}

// Configure swaps the clipboard and paste settings used by later deliveries.
func (d *Deliverer) Configure(cfg config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Deliverer) config() config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Deliver writes text to the clipboard and optionally pastes it. A clipboard
// failure is returned as an error. A paste failure is logged and reported as
// DeliveryUnsupported with the clipboard left set.
func (d *Deliverer) Deliver(ctx context.Context, text string) (Status, error) {
	if text == "" {
		return Delivered, nil
	}
	cfg := d.config()

	if err := d.stage(ctx, cfg, text); err != nil {
		return DeliveryUnsupported, fmt.Errorf("set clipboard: %w", err)
	}
	if !cfg.Paste.Enable {
		return Delivered, nil
	}

	if delay := time.Duration(cfg.Paste.DelayMS) * time.Millisecond; delay > 0 {
		select {
		case <-ctx.Done():
			return DeliveryUnsupported, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := d.paste(ctx, cfg); err != nil {
		d.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
		return DeliveryUnsupported, nil
	}
	return Delivered, nil
}

func (d *Deliverer) stage(ctx context.Context, cfg config.Config, text string) error {
	if strings.EqualFold(cfg.ClipboardBackend, "native") {
		return d.writeNative(text)
	}
	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	return runCommandWithInput(clipboardCtx, cfg.Clipboard.Argv, text)
}

func (d *Deliverer) paste(ctx context.Context, cfg config.Config) error {
	if len(cfg.PasteCmd.Argv) > 0 {
		pasteCtx, cancel := context.WithTimeout(ctx, pasteCmdTimeout)
		defer cancel()
		return runCommandWithInput(pasteCtx, cfg.PasteCmd.Argv, "")
	}

	switch resolvePasteBackend(cfg.Paste.Backend, d.hyprReady) {
	case "hypr":
		pasteCtx, cancel := context.WithTimeout(ctx, hyprPasteTimeout)
		defer cancel()
		return hyprPaste(pasteCtx, cfg.Paste.Shortcut)
	case "keybd":
		return d.keyPaste()
	default:
		return nil
	}
}

// ResolvePasteBackend reports which paste path Deliver takes for cfg:
// "command" for paste_cmd, otherwise the resolved paste.backend.
func ResolvePasteBackend(cfg config.Config) string {
	if len(cfg.PasteCmd.Argv) > 0 {
		return "command"
	}
	return resolvePasteBackend(cfg.Paste.Backend, hypr.Available)
}

// resolvePasteBackend maps "auto" to hypr inside Hyprland and keybd elsewhere.
func resolvePasteBackend(raw string, hyprReady func() bool) string {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend != "" && backend != "auto" {
		return backend
	}
	if hyprReady() {
		return "hypr"
	}
	return "keybd"
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	if out, err := cmd.CombinedOutput(); err != nil {
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, trimmed)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
