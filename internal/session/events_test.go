package session

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicify-shell/internal/bus"
	"github.com/rbright/voicify-shell/internal/fsm"
)

func TestEventsRejectedByTransitionTableLeaveSessionAlone(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		event string
	}{
		{name: "started while idle", setup: func(*harness) {}, event: bus.EventRecordingStarted},
		{name: "started while uploading", setup: uploadingRouter, event: bus.EventRecordingStarted},
		{name: "cancelled while idle", setup: func(*harness) {}, event: bus.EventRecordingCancelled},
		{name: "cancelled while start pending", setup: func(h *harness) { h.press(TriggerPostRouter) }, event: bus.EventRecordingCancelled},
		{name: "ready while recording", setup: func(h *harness) { h.startSession(fsm.ModePostRouter) }, event: bus.EventTranscriptionReady},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			var logBuf bytes.Buffer
			h.m.logger = slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			tc.setup(h)
			before := h.m.snapshot()
			changes := len(h.obs.changes)

			h.emit(bus.Event{Name: tc.event, Text: "text"})

			require.Equal(t, before, h.m.snapshot())
			require.Len(t, h.obs.changes, changes)
			require.Contains(t, logBuf.String(), "daemon event dropped")
			require.Contains(t, logBuf.String(), "invalid transition")
		})
	}
}

func TestDaemonCancelEndsRecordingAndUploading(t *testing.T) {
	for _, setup := range []func(*harness){
		func(h *harness) { h.startSession(fsm.ModeRealtime) },
		uploadingRouter,
	} {
		h := newHarness()
		setup(h)
		gen := h.m.sess.Generation

		h.emit(bus.Event{Name: bus.EventRecordingCancelled})
		require.Equal(t, fsm.Idle, h.phase())
		require.Greater(t, h.m.sess.Generation, gen)
		require.Equal(t, ReasonCancelled, h.obs.changes[len(h.obs.changes)-1].Reason)
	}
}

func TestDebouncedTriggerLogsWindow(t *testing.T) {
	h := newHarness()
	var logBuf bytes.Buffer
	h.m.logger = slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	require.Equal(t, VerdictAccepted, h.trigger(TriggerRealtime))
	h.advance(100 * time.Millisecond)
	require.Equal(t, VerdictDebounced, h.trigger(TriggerRealtime))
	require.Contains(t, logBuf.String(), `"window_ms":500`)
}

func uploadingRouter(h *harness) {
	h.startSession(fsm.ModePostRouter)
	h.trigger(TriggerPostRouter)
	h.advance(time.Second)
}
