// Package preset resolves voice presets and their credential requirements.
package preset

import (
	"fmt"
	"strings"
)

// Name identifies one speech-service combination.
type Name string

const (
	Groq     Name = "groq"
	Deepgram Name = "deepgram"
	Cartesia Name = "cartesia"
	Local    Name = "local"
	Kokoro   Name = "kokoro"
)

// Default is used when VOICE_PRESET is unset.
const Default = Groq

// EnvVar selects the preset.
const EnvVar = "VOICE_PRESET"

var ordered = []Name{Groq, Deepgram, Cartesia, Local, Kokoro}

var requiredKeys = map[Name][]string{
	Groq:     {"GROQ_API_KEY"},
	Deepgram: {"DEEPGRAM_API_KEY"},
	Cartesia: {"DEEPGRAM_API_KEY", "CARTESIA_API_KEY"},
	Local:    nil,
	Kokoro:   nil,
}

// Env looks up one environment variable.
type Env func(key string) string

// Config is the validation outcome for one preset, computed from an env snapshot.
type Config struct {
	Name        Name
	RequiredKey []string
	MissingKeys []string
	Valid       bool
	Error       string
}

// Names lists every known preset in display order.
func Names() []Name {
	return append([]Name(nil), ordered...)
}

// Known reports whether name is a known preset.
func Known(name string) bool {
	_, ok := requiredKeys[Name(normalize(name))]
	return ok
}

// RequiredKeys lists the credential variables name needs.
func RequiredKeys(name Name) []string {
	return append([]string(nil), requiredKeys[name]...)
}

// Validate reads VOICE_PRESET and the credential variables from env.
func Validate(env Env) Config {
	return ValidateName(env(EnvVar), env)
}

// ValidateName checks the named preset, reading only credentials from env.
// A blank name selects Default.
func ValidateName(rawName string, env Env) Config {
	raw := normalize(rawName)
	if raw == "" {
		raw = string(Default)
	}
	name := Name(raw)

	keys, ok := requiredKeys[name]
	if !ok {
		return Config{
			Name:  name,
			Error: fmt.Sprintf("Unknown preset '%s'. Valid: %s", raw, validList()),
		}
	}

	missing := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.TrimSpace(env(key)) == "" {
			missing = append(missing, key)
		}
	}

	cfg := Config{
		Name:        name,
		RequiredKey: append([]string(nil), keys...),
		MissingKeys: missing,
		Valid:       len(missing) == 0,
	}
	if !cfg.Valid {
		cfg.Error = fmt.Sprintf("Missing API key(s) for '%s' preset: %s", raw, strings.Join(missing, ", "))
	}
	return cfg
}

// Resolve maps a raw preset name to a known preset, falling back to Default.
// The returned warning is non-empty when a fallback happened.
func Resolve(raw string) (Name, string) {
	name := normalize(raw)
	if name == "" {
		return Default, ""
	}
	if _, ok := requiredKeys[Name(name)]; ok {
		return Name(name), ""
	}
	return Default, fmt.Sprintf("unknown voice preset %q; using %s", raw, Default)
}

func validList() string {
	names := make([]string, 0, len(ordered))
	for _, name := range ordered {
		names = append(names, string(name))
	}
	return strings.Join(names, ", ")
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
