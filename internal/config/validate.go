package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validExporters = map[string]struct{}{
	"none": {},
	"file": {},
	"otlp": {},
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Transport) == "" {
		return nil, fmt.Errorf("transport must not be empty")
	}
	if strings.TrimSpace(cfg.VoicePreset) == "" {
		return nil, fmt.Errorf("voice_preset must not be empty")
	}
	if strings.TrimSpace(cfg.Runner.Host) == "" {
		return nil, fmt.Errorf("runner.host must not be empty")
	}
	if cfg.Runner.Port <= 0 || cfg.Runner.Port > 65535 {
		return nil, fmt.Errorf("runner.port must be between 1 and 65535")
	}
	if cfg.Worker.HealthDelayMS < 0 {
		return nil, fmt.Errorf("worker.health_delay_ms must be >= 0")
	}
	if cfg.Worker.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("worker.poll_interval_ms must be > 0")
	}
	if cfg.Worker.StopTimeoutMS <= 0 {
		return nil, fmt.Errorf("worker.stop_timeout_ms must be > 0")
	}
	if cfg.Audio.SilenceThreshold <= 0 || cfg.Audio.SilenceThreshold > 1 {
		return nil, fmt.Errorf("audio.silence_threshold must be in (0, 1]")
	}
	if cfg.Audio.StopSilenceMS <= 0 {
		return nil, fmt.Errorf("audio.stop_silence_ms must be > 0")
	}
	if cfg.Audio.MinSpeechMS < 0 {
		return nil, fmt.Errorf("audio.min_speech_ms must be >= 0")
	}
	if cfg.Speech.TimeoutMS <= 0 {
		return nil, fmt.Errorf("speech.timeout_ms must be > 0")
	}
	for name, raw := range map[string]string{
		"speech.local_stt_url":     cfg.Speech.LocalSTTURL,
		"speech.local_tts_url":     cfg.Speech.LocalTTSURL,
		"speech.groq_base_url":     cfg.Speech.GroqBaseURL,
		"speech.deepgram_base_url": cfg.Speech.DeepgramBaseURL,
		"speech.cartesia_base_url": cfg.Speech.CartesiaBaseURL,
	} {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if len(cfg.Screen.CaptureCmd.Argv) == 0 {
		return nil, fmt.Errorf("screen.capture_cmd must not be empty")
	}

	exporter := strings.ToLower(strings.TrimSpace(cfg.Tracing.Exporter))
	if _, ok := validExporters[exporter]; !ok {
		return nil, fmt.Errorf("tracing.exporter must be one of: none, file, otlp")
	}
	if exporter == "otlp" && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return nil, fmt.Errorf("tracing.endpoint must not be empty when tracing.exporter=otlp")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return nil, fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	if exporter != "none" && cfg.Tracing.SampleRate == 0 {
		warnings = append(warnings, Warning{Message: "tracing.sample_rate is 0; no spans will be recorded"})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		warnings = append(warnings, Warning{Message: fmt.Sprintf("log.level %q is unknown; using info", cfg.Log.Level)})
	}

	return warnings, nil
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL")
	}
	if parsed.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}
