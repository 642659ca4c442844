// Package speech provides HTTP speech-to-text and text-to-speech clients per voice preset.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/voxmcp/internal/config"
	"github.com/rbright/voxmcp/internal/preset"
)

// STT turns one utterance into text.
type STT interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// TTS turns text into playable audio.
type TTS interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Services bundles the STT/TTS pair chosen for a preset.
type Services struct {
	Preset preset.Name
	STT    STT
	TTS    TTS
}

// Options configures New.
type Options struct {
	Preset    preset.Name
	Env       preset.Env
	Endpoints config.SpeechConfig
	Client    *http.Client
	Logger    *slog.Logger
}

// Model and voice identifiers per preset.
const (
	GroqSTTModel     = "whisper-large-v3-turbo"
	GroqTTSModel     = "canopylabs/orpheus-v1-english"
	GroqVoice        = "hannah"
	DeepgramSTTModel = "nova-3-general"
	DeepgramVoice    = "aura-2-en-US-asteria"
	CartesiaModel    = "sonic-2"
	CartesiaVoice    = "a0e99841-438c-4a64-b679-ae501e7d6091"
	CartesiaVersion  = "2024-06-10"
	LocalSTTModel    = "Systran/faster-distil-whisper-large-v3"
	PiperVoice       = "en_US-amy-medium"
	KokoroVoice      = "af_heart"
)

// OutputSampleRate is the rate requested from services that accept one.
const OutputSampleRate = 24000

// New builds the services for opts.Preset.
func New(opts Options) (Services, error) {
	client := opts.Client
	if client == nil {
		timeout := time.Duration(opts.Endpoints.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	env := opts.Env
	if env == nil {
		env = func(string) string { return "" }
	}
	key := func(name string) (string, error) {
		value := strings.TrimSpace(env(name))
		if value == "" {
			return "", fmt.Errorf("%s required for '%s' preset: %w", name, opts.Preset, ErrNoAPIKey)
		}
		return value, nil
	}

	ep := opts.Endpoints
	services := Services{Preset: opts.Preset}

	switch opts.Preset {
	case preset.Deepgram, preset.Cartesia:
		deepgramKey, err := key("DEEPGRAM_API_KEY")
		if err != nil {
			return Services{}, err
		}
		dg := &Deepgram{BaseURL: ep.DeepgramBaseURL, APIKey: deepgramKey, Client: client}
		services.STT = dg
		if opts.Preset == preset.Deepgram {
			services.TTS = dg
			break
		}
		cartesiaKey, err := key("CARTESIA_API_KEY")
		if err != nil {
			return Services{}, err
		}
		services.TTS = &Cartesia{BaseURL: ep.CartesiaBaseURL, APIKey: cartesiaKey, Client: client}
	case preset.Local, preset.Kokoro:
		voice, model := PiperVoice, "piper"
		if opts.Preset == preset.Kokoro {
			voice, model = KokoroVoice, "kokoro"
		}
		services.STT = &OpenAICompatible{Provider: "local", TranscribeURL: ep.LocalSTTURL, Model: LocalSTTModel, Client: client, Logger: logger}
		services.TTS = &OpenAICompatible{Provider: string(opts.Preset), SpeechURL: ep.LocalTTSURL, Model: model, Voice: voice, Client: client, Logger: logger}
	case preset.Groq:
		groqKey, err := key("GROQ_API_KEY")
		if err != nil {
			return Services{}, err
		}
		base := strings.TrimRight(ep.GroqBaseURL, "/")
		groq := &OpenAICompatible{
			Provider:      "groq",
			TranscribeURL: base + "/audio/transcriptions",
			SpeechURL:     base + "/audio/speech",
			APIKey:        groqKey,
			Model:         GroqSTTModel,
			SpeechModel:   GroqTTSModel,
			Voice:         GroqVoice,
			Client:        client,
			Logger:        logger,
		}
		services.STT = groq
		services.TTS = groq
	default:
		return Services{}, fmt.Errorf("unknown voice preset %q", opts.Preset)
	}

	return services, nil
}

func doRequest(ctx context.Context, client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("speech [%s]: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech [%s]: read response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func newJSONRequest(method, url string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
