package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning reports that another session owner answered on the socket.
var ErrAlreadyRunning = errors.New("voicify-shell owner already running")

// OwnerRunningError carries what the live owner reported when it refused the
// socket to a second owner.
type OwnerRunningError struct {
	Path  string
	State string
	Mode  string
}

func (e *OwnerRunningError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s on %s", ErrAlreadyRunning, e.Path)
	}
	if e.Mode == "" || e.Mode == "none" {
		return fmt.Sprintf("%s on %s (%s)", ErrAlreadyRunning, e.Path, e.State)
	}
	return fmt.Sprintf("%s on %s (%s/%s)", ErrAlreadyRunning, e.Path, e.State, e.Mode)
}

func (e *OwnerRunningError) Is(target error) bool { return target == ErrAlreadyRunning }

// RuntimeSocketPath is the owner socket under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "voicify-shell.sock"), nil
}

// Acquire makes this process the session owner by listening on path.
//
// When the path is taken, the current holder is asked for its status. An
// answer of any kind means a live owner and yields *OwnerRunningError. Only
// ErrNoOwner lets Acquire unlink the leftover socket and try again; any other
// failure leaves the path alone.
func Acquire(ctx context.Context, path string, statusTimeout time.Duration, retries int) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		resp, err := Call(ctx, path, Request{Command: CommandStatus}, statusTimeout)
		switch {
		case err == nil || resp.Error != "":
			return nil, &OwnerRunningError{Path: path, State: resp.State, Mode: resp.Mode}
		case !errors.Is(err, ErrNoOwner):
			return nil, fmt.Errorf("ask socket owner %s: %w", path, err)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if attempt == retries {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, retries)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
		}
	}
}
