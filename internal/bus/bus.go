// Package bus is the D-Bus client for the voicify recorder daemon.
package bus

import (
	"time"

	"github.com/rbright/voicify-shell/internal/config"
)

// Default daemon coordinates on the session bus.
const (
	DefaultService   = "com.dooshek.voicify"
	DefaultPath      = "/com/dooshek/voicify/Recorder"
	DefaultInterface = "com.dooshek.voicify.Recorder"
)

// Op names one remote operation exposed by the daemon.
type Op string

const (
	OpStartRealtime       Op = "StartRealtimeRecording"
	OpTogglePostAutoPaste Op = "TogglePostTranscriptionAutoPaste"
	OpTogglePostRouter    Op = "TogglePostTranscriptionRouter"
	OpCancelRecording     Op = "CancelRecording"
	OpUpdateFocusedWindow Op = "UpdateFocusedWindow"
	OpGetStatus           Op = "GetStatus"
)

// Inbound event names. ServiceLost is synthesized locally when the daemon's
// name loses its owner or the bus connection drops.
const (
	EventRecordingStarted      = "RecordingStarted"
	EventTranscriptionReady    = "TranscriptionReady"
	EventPartialTranscription  = "PartialTranscription"
	EventCompleteTranscription = "CompleteTranscription"
	EventRecordingError        = "RecordingError"
	EventRecordingCancelled    = "RecordingCancelled"
	EventInputLevel            = "InputLevel"
	EventRequestPaste          = "RequestPaste"
	EventServiceLost           = "ServiceLost"
)

// Event is one decoded inbound notification.
type Event struct {
	Name  string
	Text  string
	Level float64
}

// Handler consumes events on the dispatcher goroutine and must not block.
type Handler func(Event)

// Outcome is the single asynchronous result of Call.
type Outcome struct {
	Op  Op
	Err error
	// Active is the GetStatus reply; false for every other operation.
	Active bool
}

// Config locates the daemon and bounds each call.
type Config struct {
	Service        string
	Path           string
	Interface      string
	CallTimeout    time.Duration
	ReconnectDelay time.Duration
}

// DefaultConfig targets the stock daemon.
func DefaultConfig() Config {
	return Config{
		Service:        DefaultService,
		Path:           DefaultPath,
		Interface:      DefaultInterface,
		CallTimeout:    5 * time.Second,
		ReconnectDelay: 2 * time.Second,
	}
}

// ConfigFrom converts the bus config section into transport settings.
func ConfigFrom(cfg config.BusConfig) Config {
	return Config{
		Service:        cfg.Service,
		Path:           cfg.Path,
		Interface:      cfg.Interface,
		CallTimeout:    time.Duration(cfg.CallTimeoutMS) * time.Millisecond,
		ReconnectDelay: time.Duration(cfg.ReconnectMS) * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Service == "" {
		c.Service = def.Service
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.Interface == "" {
		c.Interface = def.Interface
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	return c
}
