// Package config resolves, parses, validates, and defaults voicify-shell configuration.
package config

// Config is the fully materialized runtime configuration used by voicify-shell.
type Config struct {
	Bus              BusConfig
	Session          SessionConfig
	Focus            FocusConfig
	Clipboard        CommandConfig
	ClipboardBackend string
	Paste            PasteConfig
	PasteCmd         CommandConfig
	Indicator        IndicatorConfig
	Hotkeys          HotkeyConfig
	Log              LogConfig
}

// BusConfig addresses the voicify daemon on the session bus.
type BusConfig struct {
	Service       string
	Path          string
	Interface     string
	CallTimeoutMS int
	ReconnectMS   int
}

// SessionConfig holds the state machine timings. Changes apply on restart only.
type SessionConfig struct {
	DebounceMS      int
	FinishMS        int
	UploadTimeoutMS int
	CancelOrphaned  bool
}

// FocusConfig selects the focused-window backend.
type FocusConfig struct {
	Backend string
}

// PasteConfig controls paste dispatch after the clipboard is staged.
type PasteConfig struct {
	Enable   bool
	Backend  string
	Shortcut string
	DelayMS  int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	TextRecording     string
	TextRealtime      string
	TextProcessing    string
	TextError         string
	ErrorTimeoutMS    int
}

// HotkeyConfig maps optional global shortcuts to trigger names.
type HotkeyConfig struct {
	Enable        bool
	Realtime      string
	PostAutoPaste string
	PostRouter    string
	Cancel        string
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
