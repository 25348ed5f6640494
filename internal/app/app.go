// Package app implements the voicify-shell commands and wires the owner process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/cli"
	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/doctor"
	"github.com/rbright/voicify-shell/internal/focus"
	"github.com/rbright/voicify-shell/internal/hotkey"
	"github.com/rbright/voicify-shell/internal/indicator"
	"github.com/rbright/voicify-shell/internal/ipc"
	"github.com/rbright/voicify-shell/internal/logging"
	"github.com/rbright/voicify-shell/internal/loop"
	"github.com/rbright/voicify-shell/internal/monitor"
	"github.com/rbright/voicify-shell/internal/output"
	"github.com/rbright/voicify-shell/internal/session"
	"github.com/rbright/voicify-shell/internal/version"
)

const (
	forwardTimeout       = 500 * time.Millisecond
	acquireStatusTimeout = 180 * time.Millisecond
	acquireRetries       = 8
)

// Runner executes commands against explicit output streams. The optional
// fields replace live desktop integrations.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Dial    bus.Dialer
	Hotkeys hotkey.Registrar
	Probes  doctor.Probes
}

var _ cli.Actions = Runner{}

// Execute runs one command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCommand(r)
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	err := root.ExecuteContext(ctx)
	code := cli.ExitCode(err)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if code == cli.ExitUsage {
			fmt.Fprintf(r.Stderr, "Run '%s --help' for usage.\n", root.Name())
		}
	}
	return code
}

func (r Runner) Version() string { return version.String() }

// env is the per-command runtime: loaded config plus the open log.
type env struct {
	loaded config.Loaded
	logs   logging.Runtime
	logger *slog.Logger
}

func (e env) close() { _ = e.logs.Close() }

// prepare loads config and opens the log. Config warnings go to stderr only
// for interactive commands; keybinding-driven commands just log them.
func (r Runner) prepare(command string, opts cli.Options, showWarnings bool) (env, error) {
	loaded, err := config.Load(opts.ConfigPath)
	if err != nil {
		return env{}, err
	}

	logs, err := logging.New(loaded.Config.Log.Level)
	if err != nil {
		return env{}, fmt.Errorf("setup logging: %w", err)
	}
	logger := r.Logger
	if logger == nil {
		logger = logs.Logger
	}

	for _, w := range loaded.Warnings {
		if showWarnings {
			msg := w.Message
			if w.Line > 0 {
				msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
			}
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", command,
		"config", loaded.Path,
		"log", logs.Path,
	)
	return env{loaded: loaded, logs: logs, logger: logger}, nil
}

// Run owns the session until ctx is cancelled.
func (r Runner) Run(ctx context.Context, opts cli.Options) error {
	e, err := r.prepare("run", opts, true)
	if err != nil {
		return err
	}
	defer e.close()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, acquireStatusTimeout, acquireRetries)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	return r.own(ctx, e, listener)
}

// own wires the session machine to the bus, the delivery and indicator
// workers, owner IPC, hotkeys, and config reload, then runs them until ctx
// ends or one of the required workers fails.
func (r Runner) own(ctx context.Context, e env, listener net.Listener) error {
	cfg := e.loaded.Config
	logger := e.logger

	reporter, err := focus.New(cfg.Focus.Backend, logger)
	if err != nil {
		return err
	}

	workers, ctx := errgroup.WithContext(ctx)

	events := loop.New()
	client := bus.NewClient(bus.ConfigFrom(cfg.Bus), logger, r.Dial)
	deliverer := output.NewDeliverer(cfg, logger)
	queue := output.NewQueue(deliverer, logger)
	notifier := indicator.NewNotifier(cfg.Indicator, logger)

	machine := session.NewMachine(session.Deps{
		Logger:    logger,
		Loop:      events,
		Transport: client,
		Sink:      queue,
		Focus:     reporter,
		Observer:  notifier,
	}, SessionSettings(cfg.Session))
	machine.Attach(ctx, client)

	logger.Info("session owner started",
		"service", cfg.Bus.Service,
		"focus_backend", string(reporter.Backend()),
		"paste_backend", output.ResolvePasteBackend(cfg),
		"hotkeys", cfg.Hotkeys.Enable,
	)

	required(workers, ctx, "event loop", events.Run)
	required(workers, ctx, "session calls", machine.Run)
	required(workers, ctx, "bus client", client.Run)
	required(workers, ctx, "delivery queue", queue.Run)
	required(workers, ctx, "indicator", notifier.Run)
	required(workers, ctx, "ipc server", func(ctx context.Context) error {
		return ipc.Serve(ctx, listener, machine)
	})

	optional(workers, ctx, logger, "config watcher", func(ctx context.Context) error {
		return config.Watch(ctx, e.loaded.Path, logger, func(next config.Loaded) {
			applyReload(logger, e.logs, cfg, next.Config, deliverer, notifier)
		})
	})

	if cfg.Hotkeys.Enable {
		keys := hotkey.NewListener(hotkey.Bindings(cfg.Hotkeys), r.Hotkeys, logger)
		optional(workers, ctx, logger, "hotkeys", func(ctx context.Context) error {
			return keys.Run(ctx, func(trigger string) {
				verdict, err := machine.Trigger(ctx, trigger)
				if err != nil {
					logger.Warn("hotkey trigger failed", "trigger", trigger, "error", err.Error())
					return
				}
				logger.Debug("hotkey trigger", "trigger", trigger, "verdict", string(verdict))
			})
		})
	}

	err = workers.Wait()
	logger.Info("session owner stopped")
	return err
}

// applyReload pushes reloaded settings to the layers that accept them live.
// Session, bus, focus, and hotkey settings need a restart.
func applyReload(
	logger *slog.Logger,
	logs logging.Runtime,
	current config.Config,
	next config.Config,
	deliverer *output.Deliverer,
	notifier *indicator.Notifier,
) {
	deliverer.Configure(next)
	notifier.Configure(next.Indicator)
	if err := logs.SetLevel(next.Log.Level); err != nil {
		logger.Warn("log level not applied", "error", err.Error())
	}

	var stale []string
	if next.Bus != current.Bus {
		stale = append(stale, "bus")
	}
	if next.Session != current.Session {
		stale = append(stale, "session")
	}
	if next.Focus != current.Focus {
		stale = append(stale, "focus")
	}
	if next.Hotkeys != current.Hotkeys {
		stale = append(stale, "hotkeys")
	}
	if len(stale) > 0 {
		logger.Warn("config sections changed; restart to apply", "sections", stale)
	}
}

// SessionSettings converts the session config section into machine timings.
func SessionSettings(cfg config.SessionConfig) session.Settings {
	return session.Settings{
		DebounceWindow: time.Duration(cfg.DebounceMS) * time.Millisecond,
		FinishDelay:    time.Duration(cfg.FinishMS) * time.Millisecond,
		UploadTimeout:  time.Duration(cfg.UploadTimeoutMS) * time.Millisecond,
		CancelOrphaned: cfg.CancelOrphaned,
	}
}

// Trigger forwards a trigger to the running owner.
func (r Runner) Trigger(ctx context.Context, opts cli.Options, name string) error {
	e, err := r.prepare("trigger", opts, false)
	if err != nil {
		return err
	}
	defer e.close()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	resp, err := ipc.Call(ctx, socketPath, ipc.Request{Command: ipc.CommandTrigger, Trigger: name}, forwardTimeout)
	if err != nil {
		e.logger.Warn("trigger not forwarded", "trigger", name, "error", err.Error())
		return err
	}
	e.logger.Info("trigger forwarded", "trigger", name, "verdict", resp.Verdict, "state", phaseLabel(resp))
	fmt.Fprintf(r.Stdout, "%s: %s\n", resp.Verdict, phaseLabel(resp))
	return nil
}

// Status prints the owner's phase, or idle when no owner runs.
func (r Runner) Status(ctx context.Context, opts cli.Options) error {
	e, err := r.prepare("status", opts, false)
	if err != nil {
		return err
	}
	defer e.close()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}

	resp, err := ipc.Call(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(r.Stdout, phaseLabel(resp))
	return nil
}

// Monitor shows the terminal monitor for the running owner.
func (r Runner) Monitor(ctx context.Context, opts cli.Options) error {
	e, err := r.prepare("monitor", opts, false)
	if err != nil {
		return err
	}
	defer e.close()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	return monitor.Run(ctx,
		monitor.SocketFetch(socketPath, forwardTimeout),
		monitor.DefaultInterval,
		tea.WithOutput(r.Stdout),
		tea.WithAltScreen(),
	)
}

// Doctor prints the readiness report and fails when any check fails.
func (r Runner) Doctor(ctx context.Context, opts cli.Options) error {
	e, err := r.prepare("doctor", opts, true)
	if err != nil {
		return err
	}
	defer e.close()

	report := doctor.Run(ctx, e.loaded, r.Probes)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errors.New("doctor checks failed")
	}
	return nil
}

// phaseLabel renders state[/mode] from an owner response.
func phaseLabel(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	if resp.Mode == "" {
		return state
	}
	return state + "/" + resp.Mode
}

// required runs a worker whose failure stops the owner.
func required(g *errgroup.Group, ctx context.Context, name string, run func(context.Context) error) {
	g.Go(func() error {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// optional runs a worker whose failure is only logged.
func optional(g *errgroup.Group, ctx context.Context, logger *slog.Logger, name string, run func(context.Context) error) {
	g.Go(func() error {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(name+" unavailable", "error", err.Error())
		}
		return nil
	})
}
