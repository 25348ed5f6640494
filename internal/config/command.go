package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseCommand turns the raw value of clipboard_cmd or paste_cmd into a
// CommandConfig. A value that is blank or starts with '#' leaves the command
// unset so the backend setting decides how output is delivered.
func parseCommand(key, raw string) (CommandConfig, error) {
	argv, err := splitCommand(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	if len(argv) > 0 && strings.HasPrefix(argv[0], "-") {
		return CommandConfig{}, fmt.Errorf("invalid %s: %q is a flag, not a program", key, argv[0])
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(key, raw string) CommandConfig {
	cmd, err := parseCommand(key, raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

// splitCommand splits one simple command into words. Whitespace separates
// words, single or double quotes group them, and a backslash takes the next
// rune literally. A quoted empty string is kept as an empty word.
func splitCommand(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] == '#' {
		return nil, nil
	}

	var (
		words  []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("trailing backslash in %q", raw)
			}
			i++
			word.WriteRune(runes[i])
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, raw)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

// checkCommands validates clipboard_cmd and paste_cmd against the clipboard
// and paste backends they feed.
func checkCommands(cfg Config) ([]Warning, error) {
	var warnings []Warning

	switch {
	case strings.EqualFold(cfg.ClipboardBackend, "command") && len(cfg.Clipboard.Argv) == 0:
		return nil, fmt.Errorf("clipboard_cmd must not be empty when clipboard.backend=command")
	case strings.EqualFold(cfg.ClipboardBackend, "native") && len(cfg.Clipboard.Argv) > 0 && cfg.Clipboard.Raw != Default().Clipboard.Raw:
		warnings = append(warnings, Warning{Message: "clipboard_cmd is ignored when clipboard.backend=native"})
	}

	if cfg.PasteCmd.Raw == "" {
		return warnings, nil
	}
	if len(cfg.PasteCmd.Argv) == 0 {
		if cfg.Paste.Enable {
			return nil, fmt.Errorf("paste_cmd is configured but empty")
		}
		return warnings, nil
	}
	if !cfg.Paste.Enable {
		warnings = append(warnings, Warning{Message: "paste_cmd is ignored when paste.enable=false"})
		return warnings, nil
	}
	switch strings.ToLower(cfg.Paste.Backend) {
	case "none":
		return nil, fmt.Errorf("paste_cmd conflicts with paste.backend=none; unset one of them")
	case "auto":
	default:
		warnings = append(warnings, Warning{Message: fmt.Sprintf("paste_cmd overrides paste.backend=%s", cfg.Paste.Backend)})
	}
	return warnings, nil
}
