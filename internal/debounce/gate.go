// Package debounce drops repeated activations of a named trigger that land
// inside a fixed window of the last honored one.
package debounce

import "time"

// DefaultWindow matches the shortcut debounce of the desktop front-end.
const DefaultWindow = 500 * time.Millisecond

// Gate keeps one timestamp per key. It is not safe for concurrent use; the
// session machine only touches it from its loop.
type Gate struct {
	window time.Duration
	last   map[string]time.Time
}

func NewGate(window time.Duration) *Gate {
	if window < 0 {
		window = 0
	}
	return &Gate{window: window, last: make(map[string]time.Time)}
}

// Allow reports whether key may fire at now, recording now when it may.
func (g *Gate) Allow(key string, now time.Time) bool {
	if prev, ok := g.last[key]; ok && now.Sub(prev) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Window is the suppression interval after an honored activation.
func (g *Gate) Window() time.Duration {
	return g.window
}
