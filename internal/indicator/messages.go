package indicator

import (
	"os"
	"strings"

	"github.com/rbright/voicify-shell/internal/config"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	recording  string
	realtime   string
	processing string
	errorText  string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			recording:  "Recording…",
			realtime:   "Dictating…",
			processing: "Transcribing…",
			errorText:  "Dictation error",
		}
	}
}

// withOverrides replaces locale defaults with any configured indicator text.
func (m messages) withOverrides(cfg config.IndicatorConfig) messages {
	override := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
		}
	}
	override(&m.recording, cfg.TextRecording)
	override(&m.realtime, cfg.TextRealtime)
	override(&m.processing, cfg.TextProcessing)
	override(&m.errorText, cfg.TextError)
	return m
}
