package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned when a hosted provider has no credential.
	ErrNoAPIKey = errors.New("speech: API key required")
	// ErrEmptyText is returned when Synthesize is given only whitespace.
	ErrEmptyText = errors.New("speech: text is empty")
	// ErrEmptyAudio is returned when Transcribe is given no samples.
	ErrEmptyAudio = errors.New("speech: audio is empty")
)

// APIError is a non-2xx reply from a speech service.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized reports HTTP 401/403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
