// Package config resolves, parses, validates, and defaults voxmcp configuration.
package config

// Config is the fully materialized runtime configuration used by voxmcp.
type Config struct {
	Transport   string
	VoicePreset string
	Runner      RunnerConfig
	Worker      WorkerConfig
	Audio       AudioConfig
	Speech      SpeechConfig
	Screen      ScreenConfig
	Tracing     TracingConfig
	Log         LogConfig
}

// RunnerConfig locates the worker's embedded HTTP listener.
type RunnerConfig struct {
	Host string
	Port int
}

// WorkerConfig tunes worker supervision.
type WorkerConfig struct {
	HealthDelayMS  int
	PollIntervalMS int
	StopTimeoutMS  int
}

// AudioConfig controls local capture devices, listening cues, and utterance detection.
type AudioConfig struct {
	Input            string
	Fallback         string
	Cues             bool
	SilenceThreshold float64
	StopSilenceMS    int
	MinSpeechMS      int
}

// SpeechConfig overrides speech service endpoints.
type SpeechConfig struct {
	LocalSTTURL     string
	LocalTTSURL     string
	GroqBaseURL     string
	DeepgramBaseURL string
	CartesiaBaseURL string
	TimeoutMS       int
}

// ScreenConfig controls window listing and screenshots.
type ScreenConfig struct {
	CaptureDir string
	CaptureCmd CommandConfig
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter   string
	Endpoint   string
	FilePath   string
	SampleRate float64
}

// LogConfig controls log verbosity.
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
