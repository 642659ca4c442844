package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Deepgram implements STT with /listen and TTS with /speak.
type Deepgram struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// Transcribe posts the utterance as audio/wav.
func (d *Deepgram) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.PCM) == 0 {
		return "", ErrEmptyAudio
	}

	query := url.Values{}
	query.Set("model", DeepgramSTTModel)
	query.Set("smart_format", "true")
	req, err := http.NewRequest(http.MethodPost, d.endpoint("/listen", query), bytes.NewReader(EncodeWAV(audio)))
	if err != nil {
		return "", fmt.Errorf("speech [deepgram]: create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Authorization", "Token "+d.APIKey)

	raw, err := doRequest(ctx, d.Client, "deepgram", req)
	if err != nil {
		return "", err
	}

	var reply struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("speech [deepgram]: decode transcription: %w", err)
	}
	if len(reply.Results.Channels) == 0 || len(reply.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(reply.Results.Channels[0].Alternatives[0].Transcript), nil
}

// Synthesize requests raw linear16 at OutputSampleRate.
func (d *Deepgram) Synthesize(ctx context.Context, text string) (Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, ErrEmptyText
	}

	query := url.Values{}
	query.Set("model", DeepgramVoice)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(OutputSampleRate))
	query.Set("container", "none")

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Audio{}, fmt.Errorf("speech [deepgram]: marshal payload: %w", err)
	}
	req, err := newJSONRequest(http.MethodPost, d.endpoint("/speak", query), payload)
	if err != nil {
		return Audio{}, fmt.Errorf("speech [deepgram]: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)

	raw, err := doRequest(ctx, d.Client, "deepgram", req)
	if err != nil {
		return Audio{}, err
	}
	return FromBytes(raw, OutputSampleRate), nil
}

func (d *Deepgram) endpoint(path string, query url.Values) string {
	return strings.TrimRight(d.BaseURL, "/") + path + "?" + query.Encode()
}
