package hotkey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.design/x/hotkey"

	"github.com/rbright/voicify-shell/internal/config"
	"github.com/rbright/voicify-shell/internal/session"
)

func TestParse(t *testing.T) {
	tests := []struct {
		combo   string
		mods    []hotkey.Modifier
		key     hotkey.Key
		text    string
		wantErr string
	}{
		{combo: "ctrl+super+v", mods: []hotkey.Modifier{modifiers["ctrl"], modifiers["super"]}, key: hotkey.KeyV, text: "ctrl+super+v"},
		{combo: " Control+Shift+Space ", mods: []hotkey.Modifier{modifiers["ctrl"], modifiers["shift"]}, key: hotkey.KeySpace, text: "control+shift+space"},
		{combo: "meta+f9", mods: []hotkey.Modifier{modifiers["super"]}, key: hotkey.KeyF9, text: "meta+f9"},
		{combo: "esc", key: hotkey.KeyEscape, text: "esc"},
		{combo: "alt+1", mods: []hotkey.Modifier{modifiers["alt"]}, key: hotkey.Key1, text: "alt+1"},
		{combo: "", wantErr: "no key"},
		{combo: "ctrl+", wantErr: "no key"},
		{combo: "hyper+v", wantErr: "unknown modifier"},
		{combo: "ctrl+control+v", wantErr: "repeated"},
		{combo: "ctrl+pagedown", wantErr: "unknown key"},
	}

	for _, tc := range tests {
		t.Run(tc.combo, func(t *testing.T) {
			got, err := Parse(tc.combo)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.mods, got.Mods)
			require.Equal(t, tc.key, got.Key)
			require.Equal(t, tc.text, got.Text)
		})
	}
}

func TestBindingsSkipsUnsetShortcuts(t *testing.T) {
	cfg := config.Default().Hotkeys
	cfg.PostRouter = "  "

	got := Bindings(cfg)
	require.Equal(t, []Binding{
		{Trigger: session.TriggerRealtime, Combo: "ctrl+super+v"},
		{Trigger: session.TriggerPostAutoPaste, Combo: "ctrl+super+c"},
		{Trigger: session.TriggerCancel, Combo: "ctrl+super+x"},
	}, got)
}

type fakeGrab struct {
	keydown      chan hotkey.Event
	unregistered bool
}

func (g *fakeGrab) Keydown() <-chan hotkey.Event { return g.keydown }
func (g *fakeGrab) Unregister() error {
	g.unregistered = true
	return nil
}

type fakeRegistry struct {
	mu    sync.Mutex
	grabs map[string]*fakeGrab
}

func (r *fakeRegistry) register(s Shortcut) (Grab, error) {
	if s.Text == "ctrl+super+d" {
		return nil, errors.New("BadAccess")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &fakeGrab{keydown: make(chan hotkey.Event, 1)}
	r.grabs[s.Text] = g
	return g, nil
}

func (r *fakeRegistry) get(text string) *fakeGrab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grabs[text]
}

func TestListenerFiresTriggersAndUnregisters(t *testing.T) {
	reg := &fakeRegistry{grabs: map[string]*fakeGrab{}}

	l := NewListener([]Binding{
		{Trigger: session.TriggerRealtime, Combo: "ctrl+super+v"},
		{Trigger: session.TriggerPostRouter, Combo: "ctrl+super+d"},
		{Trigger: session.TriggerCancel, Combo: "nonsense+x"},
	}, reg.register, nil)

	var (
		mu    sync.Mutex
		fired []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(trigger string) {
			mu.Lock()
			fired = append(fired, trigger)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		return reg.get("ctrl+super+v") != nil
	}, time.Second, 5*time.Millisecond)
	reg.get("ctrl+super+v").keydown <- hotkey.Event{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{session.TriggerRealtime}, fired)
	mu.Unlock()

	cancel()
	require.NoError(t, <-done)
	require.True(t, reg.get("ctrl+super+v").unregistered)
	require.Len(t, reg.grabs, 1)
}

func TestListenerFailsWhenNothingRegisters(t *testing.T) {
	l := NewListener([]Binding{{Trigger: session.TriggerCancel, Combo: "ctrl+x"}}, func(Shortcut) (Grab, error) {
		return nil, errors.New("no display")
	}, nil)

	err := l.Run(context.Background(), func(string) {})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no display")

	err = NewListener(nil, nil, nil).Run(context.Background(), func(string) {})
	require.EqualError(t, err, "no hotkeys configured")
}
