package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGateSuppressesWithinWindow(t *testing.T) {
	g := NewGate(DefaultWindow)
	base := time.Unix(1000, 0)

	require.True(t, g.Allow("realtime-toggle", base))
	require.False(t, g.Allow("realtime-toggle", base.Add(499*time.Millisecond)))
	require.True(t, g.Allow("realtime-toggle", base.Add(500*time.Millisecond)))
}

func TestGateSuppressedActivationDoesNotExtendWindow(t *testing.T) {
	g := NewGate(DefaultWindow)
	base := time.Unix(1000, 0)

	require.True(t, g.Allow("cancel", base))
	require.False(t, g.Allow("cancel", base.Add(400*time.Millisecond)))
	require.True(t, g.Allow("cancel", base.Add(600*time.Millisecond)))

	// the window restarts at the honored activation, not the suppressed one
	require.False(t, g.Allow("cancel", base.Add(1000*time.Millisecond)))
	require.True(t, g.Allow("cancel", base.Add(1100*time.Millisecond)))
}

func TestGateKeysAreIndependent(t *testing.T) {
	g := NewGate(DefaultWindow)
	base := time.Unix(1000, 0)

	require.True(t, g.Allow("realtime-toggle", base))
	require.True(t, g.Allow("post-router-toggle", base.Add(time.Millisecond)))
	require.True(t, g.Allow("cancel", base.Add(2*time.Millisecond)))
	require.False(t, g.Allow("realtime-toggle", base.Add(3*time.Millisecond)))
}

func TestGateZeroWindowAllowsEverything(t *testing.T) {
	g := NewGate(0)
	now := time.Unix(1, 0)
	require.True(t, g.Allow("x", now))
	require.True(t, g.Allow("x", now))
	require.Equal(t, time.Duration(0), NewGate(-time.Second).Window())
}

func TestGateHonoredActivationsAreWindowApart(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := NewGate(DefaultWindow)
		keys := []string{"a", "b", "c"}
		now := time.Unix(0, 0)
		honored := map[string][]time.Time{}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for range steps {
			now = now.Add(time.Duration(rapid.IntRange(0, 700).Draw(rt, "advance_ms")) * time.Millisecond)
			key := rapid.SampledFrom(keys).Draw(rt, "key")
			if g.Allow(key, now) {
				honored[key] = append(honored[key], now)
			}
		}

		for key, times := range honored {
			for i := 1; i < len(times); i++ {
				if times[i].Sub(times[i-1]) < DefaultWindow {
					rt.Fatalf("key %s honored twice within window: %v then %v", key, times[i-1], times[i])
				}
			}
		}
	})
}
