package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Bus: BusConfig{
			Service:       "com.dooshek.voicify",
			Path:          "/com/dooshek/voicify/Recorder",
			Interface:     "com.dooshek.voicify.Recorder",
			CallTimeoutMS: 5000,
			ReconnectMS:   2000,
		},
		Session: SessionConfig{
			DebounceMS:      500,
			FinishMS:        900,
			UploadTimeoutMS: 120000,
		},
		Focus:            FocusConfig{Backend: "auto"},
		Clipboard:        mustParseCommand("clipboard_cmd", clipboard),
		ClipboardBackend: "command",
		Paste: PasteConfig{
			Enable:   true,
			Backend:  "auto",
			Shortcut: "CTRL,V",
			DelayMS:  100,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "voicify-shell",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Hotkeys: HotkeyConfig{
			Realtime:      "ctrl+super+v",
			PostAutoPaste: "ctrl+super+c",
			PostRouter:    "ctrl+super+d",
			Cancel:        "ctrl+super+x",
		},
		Log: LogConfig{Level: "info"},
	}
}
