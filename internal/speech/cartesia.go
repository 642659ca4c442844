package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Cartesia implements TTS with the /tts/bytes endpoint.
type Cartesia struct {
	BaseURL string
	APIKey  string
	VoiceID string
	Client  *http.Client
}

// Synthesize requests raw pcm_s16le at OutputSampleRate.
func (c *Cartesia) Synthesize(ctx context.Context, text string) (Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, ErrEmptyText
	}
	voice := c.VoiceID
	if voice == "" {
		voice = CartesiaVoice
	}

	payload, err := json.Marshal(map[string]any{
		"model_id":   CartesiaModel,
		"transcript": text,
		"voice":      map[string]string{"mode": "id", "id": voice},
		"language":   "en",
		"output_format": map[string]any{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": OutputSampleRate,
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("speech [cartesia]: marshal payload: %w", err)
	}

	req, err := newJSONRequest(http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/tts/bytes", payload)
	if err != nil {
		return Audio{}, fmt.Errorf("speech [cartesia]: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("Cartesia-Version", CartesiaVersion)

	raw, err := doRequest(ctx, c.Client, "cartesia", req)
	if err != nil {
		return Audio{}, err
	}
	return FromBytes(raw, OutputSampleRate), nil
}
