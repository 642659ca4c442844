package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Transport   *string       `json:"transport"`
	VoicePreset *string       `json:"voice_preset"`
	Runner      *jsoncRunner  `json:"runner"`
	Worker      *jsoncWorker  `json:"worker"`
	Audio       *jsoncAudio   `json:"audio"`
	Speech      *jsoncSpeech  `json:"speech"`
	Screen      *jsoncScreen  `json:"screen"`
	Tracing     *jsoncTracing `json:"tracing"`
	Log         *jsoncLog     `json:"log"`
}

type jsoncRunner struct {
	Host *string `json:"host"`
	Port *int    `json:"port"`
}

type jsoncWorker struct {
	HealthDelayMS  *int `json:"health_delay_ms"`
	PollIntervalMS *int `json:"poll_interval_ms"`
	StopTimeoutMS  *int `json:"stop_timeout_ms"`
}

type jsoncAudio struct {
	Input            *string  `json:"input"`
	Fallback         *string  `json:"fallback"`
	Cues             *bool    `json:"cues"`
	SilenceThreshold *float64 `json:"silence_threshold"`
	StopSilenceMS    *int     `json:"stop_silence_ms"`
	MinSpeechMS      *int     `json:"min_speech_ms"`
}

type jsoncSpeech struct {
	LocalSTTURL     *string `json:"local_stt_url"`
	LocalTTSURL     *string `json:"local_tts_url"`
	GroqBaseURL     *string `json:"groq_base_url"`
	DeepgramBaseURL *string `json:"deepgram_base_url"`
	CartesiaBaseURL *string `json:"cartesia_base_url"`
	TimeoutMS       *int    `json:"timeout_ms"`
}

type jsoncScreen struct {
	CaptureDir *string `json:"capture_dir"`
	CaptureCmd *string `json:"capture_cmd"`
}

type jsoncTracing struct {
	Exporter   *string  `json:"exporter"`
	Endpoint   *string  `json:"endpoint"`
	FilePath   *string  `json:"file_path"`
	SampleRate *float64 `json:"sample_rate"`
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
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	setString(&cfg.Transport, payload.Transport)
	setString(&cfg.VoicePreset, payload.VoicePreset)

	if payload.Runner != nil {
		setString(&cfg.Runner.Host, payload.Runner.Host)
		setInt(&cfg.Runner.Port, payload.Runner.Port)
	}

	if payload.Worker != nil {
		setInt(&cfg.Worker.HealthDelayMS, payload.Worker.HealthDelayMS)
		setInt(&cfg.Worker.PollIntervalMS, payload.Worker.PollIntervalMS)
		setInt(&cfg.Worker.StopTimeoutMS, payload.Worker.StopTimeoutMS)
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
		if payload.Audio.Cues != nil {
			cfg.Audio.Cues = *payload.Audio.Cues
		}
		if payload.Audio.SilenceThreshold != nil {
			cfg.Audio.SilenceThreshold = *payload.Audio.SilenceThreshold
		}
		setInt(&cfg.Audio.StopSilenceMS, payload.Audio.StopSilenceMS)
		setInt(&cfg.Audio.MinSpeechMS, payload.Audio.MinSpeechMS)
	}

	if payload.Speech != nil {
		setString(&cfg.Speech.LocalSTTURL, payload.Speech.LocalSTTURL)
		setString(&cfg.Speech.LocalTTSURL, payload.Speech.LocalTTSURL)
		setString(&cfg.Speech.GroqBaseURL, payload.Speech.GroqBaseURL)
		setString(&cfg.Speech.DeepgramBaseURL, payload.Speech.DeepgramBaseURL)
		setString(&cfg.Speech.CartesiaBaseURL, payload.Speech.CartesiaBaseURL)
		setInt(&cfg.Speech.TimeoutMS, payload.Speech.TimeoutMS)
	}

	if payload.Screen != nil {
		setString(&cfg.Screen.CaptureDir, payload.Screen.CaptureDir)
		if payload.Screen.CaptureCmd != nil {
			cmd, err := parseCommand(*payload.Screen.CaptureCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid screen.capture_cmd: %w", err)
			}
			cfg.Screen.CaptureCmd = cmd
		}
	}

	if payload.Tracing != nil {
		setString(&cfg.Tracing.Exporter, payload.Tracing.Exporter)
		setString(&cfg.Tracing.Endpoint, payload.Tracing.Endpoint)
		setString(&cfg.Tracing.FilePath, payload.Tracing.FilePath)
		if payload.Tracing.SampleRate != nil {
			cfg.Tracing.SampleRate = *payload.Tracing.SampleRate
		}
		if cfg.Tracing.Endpoint != "" && !strings.EqualFold(cfg.Tracing.Exporter, "otlp") {
			warnings = append(warnings, Warning{Message: "tracing.endpoint is ignored unless tracing.exporter=otlp"})
		}
	}

	if payload.Log != nil {
		setString(&cfg.Log.Level, payload.Log.Level)
	}

	return warnings, nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func setInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
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
	var extra struct{}
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

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

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
