package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Bus       *jsoncBus       `json:"bus"`
	Session   *jsoncSession   `json:"session"`
	Focus     *jsoncFocus     `json:"focus"`
	Clipboard *jsoncClipboard `json:"clipboard"`
	Paste     *jsoncPaste     `json:"paste"`
	Indicator *jsoncIndicator `json:"indicator"`
	Hotkeys   *jsoncHotkeys   `json:"hotkeys"`
	Log       *jsoncLog       `json:"log"`

	ClipboardCmd *string `json:"clipboard_cmd"`
	PasteCmd     *string `json:"paste_cmd"`
}

type jsoncBus struct {
	Service       *string `json:"service"`
	Path          *string `json:"path"`
	Interface     *string `json:"interface"`
	CallTimeoutMS *int    `json:"call_timeout_ms"`
	ReconnectMS   *int    `json:"reconnect_ms"`
}

type jsoncSession struct {
	DebounceMS      *int  `json:"debounce_ms"`
	FinishMS        *int  `json:"finish_ms"`
	UploadTimeoutMS *int  `json:"upload_timeout_ms"`
	CancelOrphaned  *bool `json:"cancel_orphaned"`
}

type jsoncFocus struct {
	Backend *string `json:"backend"`
}

type jsoncClipboard struct {
	Backend *string `json:"backend"`
}

type jsoncPaste struct {
	Enable   *bool   `json:"enable"`
	Backend  *string `json:"backend"`
	Shortcut *string `json:"shortcut"`
	DelayMS  *int    `json:"delay_ms"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file"`
	TextRecording     *string `json:"text_recording"`
	TextRealtime      *string `json:"text_realtime"`
	TextProcessing    *string `json:"text_processing"`
	TextError         *string `json:"text_error"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncHotkeys struct {
	Enable        *bool   `json:"enable"`
	Realtime      *string `json:"realtime"`
	PostAutoPaste *string `json:"post_autopaste"`
	PostRouter    *string `json:"post_router"`
	Cancel        *string `json:"cancel"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if b := payload.Bus; b != nil {
		setString(&cfg.Bus.Service, b.Service)
		setString(&cfg.Bus.Path, b.Path)
		setString(&cfg.Bus.Interface, b.Interface)
		setInt(&cfg.Bus.CallTimeoutMS, b.CallTimeoutMS)
		setInt(&cfg.Bus.ReconnectMS, b.ReconnectMS)
	}

	if s := payload.Session; s != nil {
		setInt(&cfg.Session.DebounceMS, s.DebounceMS)
		setInt(&cfg.Session.FinishMS, s.FinishMS)
		setInt(&cfg.Session.UploadTimeoutMS, s.UploadTimeoutMS)
		setBool(&cfg.Session.CancelOrphaned, s.CancelOrphaned)
	}

	if payload.Focus != nil {
		setString(&cfg.Focus.Backend, payload.Focus.Backend)
	}
	if payload.Clipboard != nil {
		setString(&cfg.ClipboardBackend, payload.Clipboard.Backend)
	}

	if p := payload.Paste; p != nil {
		setBool(&cfg.Paste.Enable, p.Enable)
		setString(&cfg.Paste.Backend, p.Backend)
		setString(&cfg.Paste.Shortcut, p.Shortcut)
		setInt(&cfg.Paste.DelayMS, p.DelayMS)
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.Backend, i.Backend)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, i.SoundStopFile)
		setString(&cfg.Indicator.SoundCompleteFile, i.SoundCompleteFile)
		setString(&cfg.Indicator.SoundCancelFile, i.SoundCancelFile)
		setString(&cfg.Indicator.TextRecording, i.TextRecording)
		setString(&cfg.Indicator.TextRealtime, i.TextRealtime)
		setString(&cfg.Indicator.TextProcessing, i.TextProcessing)
		setString(&cfg.Indicator.TextError, i.TextError)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if h := payload.Hotkeys; h != nil {
		setBool(&cfg.Hotkeys.Enable, h.Enable)
		setString(&cfg.Hotkeys.Realtime, h.Realtime)
		setString(&cfg.Hotkeys.PostAutoPaste, h.PostAutoPaste)
		setString(&cfg.Hotkeys.PostRouter, h.PostRouter)
		setString(&cfg.Hotkeys.Cancel, h.Cancel)
	}

	if payload.Log != nil {
		setString(&cfg.Log.Level, payload.Log.Level)
	}

	if payload.ClipboardCmd != nil {
		cmd, err := parseCommand("clipboard_cmd", *payload.ClipboardCmd)
		if err != nil {
			return err
		}
		cfg.Clipboard = cmd
	}

	if payload.PasteCmd != nil {
		cmd, err := parseCommand("paste_cmd", *payload.PasteCmd)
		if err != nil {
			return err
		}
		cfg.PasteCmd = cmd
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// normalizeJSONC blanks out comments and trailing commas. The result is plain
// JSON with the same byte offsets as content, so decode errors point at the
// original line and column.
func normalizeJSONC(content string) (string, error) {
	const (
		inCode = iota
		inString
		inEscape
		inLineComment
		inBlockComment
	)

	out := []byte(content)
	state := inCode
	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case inString:
			switch ch {
			case '\\':
				state = inEscape
			case '"':
				state = inCode
			}
		case inEscape:
			state = inString
		case inLineComment:
			if ch == '\n' || ch == '\r' {
				state = inCode
				continue
			}
			out[i] = ' '
		case inBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = inCode
				continue
			}
			if !isJSONWhitespace(ch) {
				out[i] = ' '
			}
		default:
			if ch == '"' {
				state = inString
				continue
			}
			if ch != '/' || i+1 >= len(out) {
				continue
			}
			switch out[i+1] {
			case '/':
				state = inLineComment
			case '*':
				state = inBlockComment
			default:
				continue
			}
			out[i], out[i+1] = ' ', ' '
			i++
		}
	}

	if state == inBlockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	blankTrailingCommas(out)
	return string(out), nil
}

// blankTrailingCommas replaces commas that directly precede a closing
// bracket. Comments must already be blanked.
func blankTrailingCommas(out []byte) {
	quoted := false
	escaped := false
	for i, ch := range out {
		if quoted {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				quoted = false
			}
			continue
		}
		if ch == '"' {
			quoted = true
			continue
		}
		if ch != ',' {
			continue
		}
		j := i + 1
		for j < len(out) && isJSONWhitespace(out[j]) {
			j++
		}
		if j < len(out) && (out[j] == '}' || out[j] == ']') {
			out[i] = ' '
		}
	}
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	if key, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		if idx := strings.Index(content, key); idx >= 0 {
			line, col := offsetToLineCol(content, int64(idx)+1)
			return fmt.Errorf("line %d column %d: %w", line, col, err)
		}
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
