package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	capture := "grim"

	return Config{
		Transport:   "webrtc",
		VoicePreset: "groq",
		Runner: RunnerConfig{
			Host: "localhost",
			Port: 7860,
		},
		Worker: WorkerConfig{
			HealthDelayMS:  1000,
			PollIntervalMS: 500,
			StopTimeoutMS:  1000,
		},
		Audio: AudioConfig{
			Input:            "default",
			Fallback:         "default",
			Cues:             true,
			SilenceThreshold: 0.015,
			StopSilenceMS:    1500,
			MinSpeechMS:      250,
		},
		Speech: SpeechConfig{
			LocalSTTURL:     "http://localhost:8000/v1/audio/transcriptions",
			LocalTTSURL:     "http://localhost:8880/v1/audio/speech",
			GroqBaseURL:     "https://api.groq.com/openai/v1",
			DeepgramBaseURL: "https://api.deepgram.com/v1",
			CartesiaBaseURL: "https://api.cartesia.ai",
			TimeoutMS:       30000,
		},
		Screen: ScreenConfig{
			CaptureCmd: defaultCommand(capture),
		},
		Tracing: TracingConfig{
			Exporter:   "none",
			SampleRate: 1.0,
		},
		Log: LogConfig{Level: "info"},
	}
}
