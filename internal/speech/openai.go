package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatible talks to /audio/transcriptions and /audio/speech endpoints
// shaped like OpenAI's (Groq, faster-whisper-server, Kokoro-FastAPI, Piper HTTP).
type OpenAICompatible struct {
	Provider      string
	TranscribeURL string
	SpeechURL     string
	APIKey        string
	Model         string
	SpeechModel   string
	Voice         string
	Client        *http.Client
	Logger        *slog.Logger
}

// Transcribe uploads the utterance as a WAV file.
func (o *OpenAICompatible) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.PCM) == 0 {
		return "", ErrEmptyAudio
	}
	start := time.Now()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	file, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("speech [%s]: build form: %w", o.Provider, err)
	}
	if _, err := file.Write(EncodeWAV(audio)); err != nil {
		return "", fmt.Errorf("speech [%s]: build form: %w", o.Provider, err)
	}
	_ = form.WriteField("model", o.Model)
	_ = form.WriteField("response_format", "json")
	_ = form.WriteField("language", "en")
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("speech [%s]: build form: %w", o.Provider, err)
	}

	req, err := http.NewRequest(http.MethodPost, o.TranscribeURL, &body)
	if err != nil {
		return "", fmt.Errorf("speech [%s]: create request: %w", o.Provider, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	o.authorize(req)

	raw, err := doRequest(ctx, o.Client, o.Provider, req)
	if err != nil {
		return "", err
	}

	var reply struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("speech [%s]: decode transcription: %w", o.Provider, err)
	}

	text := strings.TrimSpace(reply.Text)
	o.logger().Debug("transcribed utterance",
		"provider", o.Provider,
		"audio_ms", audio.DurationMS(),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Synthesize requests WAV output and decodes it.
func (o *OpenAICompatible) Synthesize(ctx context.Context, text string) (Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, ErrEmptyText
	}
	start := time.Now()

	model := o.SpeechModel
	if model == "" {
		model = o.Model
	}
	payload, err := json.Marshal(map[string]any{
		"model":           model,
		"voice":           o.Voice,
		"input":           text,
		"response_format": "wav",
	})
	if err != nil {
		return Audio{}, fmt.Errorf("speech [%s]: marshal payload: %w", o.Provider, err)
	}

	req, err := newJSONRequest(http.MethodPost, o.SpeechURL, payload)
	if err != nil {
		return Audio{}, fmt.Errorf("speech [%s]: create request: %w", o.Provider, err)
	}
	o.authorize(req)

	raw, err := doRequest(ctx, o.Client, o.Provider, req)
	if err != nil {
		return Audio{}, err
	}
	audio, err := DecodeWAV(raw)
	if err != nil {
		return Audio{}, fmt.Errorf("speech [%s]: decode audio: %w", o.Provider, err)
	}

	o.logger().Debug("synthesized speech",
		"provider", o.Provider,
		"voice", o.Voice,
		"chars", len(text),
		"audio_ms", audio.DurationMS(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return audio, nil
}

func (o *OpenAICompatible) authorize(req *http.Request) {
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}
}

func (o *OpenAICompatible) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
