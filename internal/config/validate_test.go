package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty transport", mutate: func(c *Config) { c.Transport = " " }, wantErr: "transport"},
		{name: "empty preset", mutate: func(c *Config) { c.VoicePreset = "" }, wantErr: "voice_preset"},
		{name: "empty host", mutate: func(c *Config) { c.Runner.Host = "" }, wantErr: "runner.host"},
		{name: "port too high", mutate: func(c *Config) { c.Runner.Port = 70000 }, wantErr: "runner.port"},
		{name: "zero port", mutate: func(c *Config) { c.Runner.Port = 0 }, wantErr: "runner.port"},
		{name: "negative health delay", mutate: func(c *Config) { c.Worker.HealthDelayMS = -1 }, wantErr: "health_delay_ms"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Worker.PollIntervalMS = 0 }, wantErr: "poll_interval_ms"},
		{name: "zero stop timeout", mutate: func(c *Config) { c.Worker.StopTimeoutMS = 0 }, wantErr: "stop_timeout_ms"},
		{name: "silence threshold above one", mutate: func(c *Config) { c.Audio.SilenceThreshold = 1.5 }, wantErr: "silence_threshold"},
		{name: "zero stop silence", mutate: func(c *Config) { c.Audio.StopSilenceMS = 0 }, wantErr: "stop_silence_ms"},
		{name: "negative min speech", mutate: func(c *Config) { c.Audio.MinSpeechMS = -5 }, wantErr: "min_speech_ms"},
		{name: "zero speech timeout", mutate: func(c *Config) { c.Speech.TimeoutMS = 0 }, wantErr: "timeout_ms"},
		{name: "non-http stt url", mutate: func(c *Config) { c.Speech.LocalSTTURL = "ftp://host/x" }, wantErr: "speech.local_stt_url"},
		{name: "hostless groq url", mutate: func(c *Config) { c.Speech.GroqBaseURL = "https://" }, wantErr: "speech.groq_base_url"},
		{name: "empty capture argv", mutate: func(c *Config) { c.Screen.CaptureCmd = CommandConfig{} }, wantErr: "capture_cmd"},
		{name: "unknown exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: "tracing.exporter"},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Exporter = "otlp" }, wantErr: "tracing.endpoint"},
		{name: "sample rate above one", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample_rate"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.SampleRate = 0
	cfg.Log.Level = "verbose"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "sample_rate")
	require.Contains(t, warnings[1].Message, "log.level")
}
