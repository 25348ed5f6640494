package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildPasteShortcut(t *testing.T) {
	t.Parallel()

	t.Run("builds payload", func(t *testing.T) {
		got, err := buildPasteShortcut("SUPER,V", " 0xabc ")
		require.NoError(t, err)
		require.Equal(t, "SUPER,V,address:0xabc", got)
	})

	t.Run("rejects empty shortcut", func(t *testing.T) {
		_, err := buildPasteShortcut("", "0xabc")
		require.Error(t, err)
		require.Contains(t, err.Error(), "shortcut")
	})

	t.Run("rejects empty address", func(t *testing.T) {
		_, err := buildPasteShortcut("CTRL,V", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "address")
	})
}

func TestHyprPasteDispatchesShortcut(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	t.Setenv("HYPR_ACTIVEWINDOW_JSON", `{"address":"0xabc","class":"ghostty","initialClass":"ghostty"}`)
	installHyprctlPasteStub(t)

	err := hyprPaste(context.Background(), "SUPER,V")
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "--quiet dispatch sendshortcut SUPER,V,address:0xabc")
}

func TestActiveWindowWithRetryHonorsContextCancel(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := activeWindowWithRetry(ctx, 3, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestActiveWindowWithRetryReportsLastError(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := activeWindowWithRetry(context.Background(), 2, time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "resolve active window")
}

func TestHyprPasteFailsWhenActiveWindowAddressMissing(t *testing.T) {
	t.Setenv("HYPR_ACTIVEWINDOW_JSON", `{"address":"","class":"brave-browser"}`)
	installHyprctlPasteStub(t)

	err := hyprPaste(context.Background(), "CTRL,V")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty address")
}
