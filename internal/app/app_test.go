package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/doctor"
	"github.com/rbright/voicify-shell/internal/indicator"
	"github.com/rbright/voicify-shell/internal/ipc"
	"github.com/rbright/voicify-shell/internal/logging"
	"github.com/rbright/voicify-shell/internal/output"
)

const quietConfig = `{
  // no desktop integrations in tests
  "focus": {"backend": "none"},
  "paste": {"enable": false},
  "indicator": {"enable": false, "sound_enable": false},
  "clipboard_cmd": "sh -c 'cat >/dev/null'",
}
`

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "voicify-shell")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "error: unknown command")
	require.Contains(t, stderr.String(), "--help")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerTriggerWithoutOwnerFails(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "trigger", "cancel"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error: no voicify-shell owner is running")
}

func TestRunnerForwardsToActiveOwner(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "recording", Mode: "post-autopaste"}
		case ipc.CommandTrigger:
			return ipc.Response{OK: true, Verdict: "accepted", State: "uploading", Mode: "post-autopaste"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	runner := Runner{Stdout: stdout, Stderr: stderr}

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"}))
	require.Equal(t, "recording/post-autopaste\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "trigger", "post-autopaste-toggle"}))
	require.Equal(t, "accepted: uploading/post-autopaste\n", stdout.String())
	require.Empty(t, stderr.String())

	require.Equal(t, ipc.Request{Command: ipc.CommandStatus}, <-requests)
	require.Equal(t, ipc.Request{Command: ipc.CommandTrigger, Trigger: "post-autopaste-toggle"}, <-requests)
}

func TestRunnerReportsOwnerRejection(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")
	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: false, Error: "loop closed"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "status: loop closed")
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	paths := setupRunnerEnv(t, `{"session": {"debounce": 10}}`)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown field")
}

func TestRunnerDoctorPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/tmp/test-bus")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Probes: doctor.Probes{
		DaemonStatus: func(context.Context, bus.Config) (bool, error) { return false, nil },
		CueOutput:    func() (indicator.CueOutput, error) { return indicator.CueOutput{}, nil },
	}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "[OK] config: loaded")
	require.Contains(t, stdout.String(), "[OK] daemon: com.dooshek.voicify reachable (idle)")

	stdout.Reset()
	stderr.Reset()
	runner.Probes.DaemonStatus = func(context.Context, bus.Config) (bool, error) {
		return false, errors.New("service unknown")
	}
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[FAIL] daemon")
	require.Contains(t, stderr.String(), "error: doctor checks failed")
}

func TestRunnerOwnsSessionAndServesIPC(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := Runner{
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
		Dial:   func() (bus.Conn, error) { return nil, errors.New("no session bus in tests") },
	}
	done := make(chan int, 1)
	go func() {
		done <- owner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(paths.socketPath())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var stdout bytes.Buffer
	client := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Eventually(t, func() bool {
		stdout.Reset()
		return client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}) == 0 &&
			stdout.String() == "idle\n"
	}, 2*time.Second, 20*time.Millisecond)

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "trigger", "realtime-toggle"}))
	require.Equal(t, "accepted: idle/realtime\n", stdout.String())

	// the start call fails without a bus, so the session falls back to idle
	require.Eventually(t, func() bool {
		stdout.Reset()
		return client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}) == 0 &&
			stdout.String() == "idle\n"
	}, 2*time.Second, 20*time.Millisecond)

	var stderr bytes.Buffer
	second := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr, Dial: owner.Dial}
	require.Equal(t, 1, second.Execute(context.Background(), []string{"--config", paths.configPath, "run"}))
	require.Contains(t, stderr.String(), "already running")

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("owner did not stop")
	}

	_, err := os.Stat(paths.socketPath())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyReloadReconfiguresLiveLayersAndFlagsRestart(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	current := config.Default()
	next := current
	next.Paste.Enable = false
	next.Session.FinishMS = 1200
	next.Hotkeys.Enable = true

	deliverer := output.NewDeliverer(current, logger)
	notifier := indicator.NewNotifier(current.Indicator, logger)

	applyReload(logger, logging.Runtime{}, current, next, deliverer, notifier)
	require.Contains(t, logBuf.String(), "restart to apply")
	require.Contains(t, logBuf.String(), `"sections":["session","hotkeys"]`)

	logBuf.Reset()
	applyReload(logger, logging.Runtime{}, next, next, deliverer, notifier)
	require.NotContains(t, logBuf.String(), "restart to apply")
}

func TestSessionSettings(t *testing.T) {
	settings := SessionSettings(config.Default().Session)
	require.Equal(t, 500*time.Millisecond, settings.DebounceWindow)
	require.Equal(t, 900*time.Millisecond, settings.FinishDelay)
	require.Equal(t, 2*time.Minute, settings.UploadTimeout)
	require.False(t, settings.CancelOrphaned)
}

func TestPhaseLabel(t *testing.T) {
	require.Equal(t, "idle", phaseLabel(ipc.Response{}))
	require.Equal(t, "recording/realtime", phaseLabel(ipc.Response{State: "recording", Mode: "realtime"}))
}

func TestRequiredWorkerFailureStopsTheOwner(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	workers, ctx := errgroup.WithContext(context.Background())

	stopped := make(chan struct{})
	required(workers, ctx, "waiter", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	optional(workers, ctx, logger, "extra", func(context.Context) error {
		return errors.New("not available")
	})
	required(workers, ctx, "broken", func(context.Context) error {
		return errors.New("boom")
	})

	require.EqualError(t, workers.Wait(), "broken: boom")
	<-stopped
	require.Contains(t, logBuf.String(), "extra unavailable")
}

func TestOptionalWorkerFailureKeepsOwnerRunning(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	workers, ctx := errgroup.WithContext(parent)

	optional(workers, ctx, slog.New(slog.DiscardHandler), "hotkeys", func(context.Context) error {
		return errors.New("no display")
	})
	required(workers, ctx, "event loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ctx.Err())

	cancel()
	require.NoError(t, workers.Wait())
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func (p runnerPaths) socketPath() string {
	return filepath.Join(p.runtimeDir, "voicify-shell.sock")
}

func setupRunnerEnv(t *testing.T, content string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
