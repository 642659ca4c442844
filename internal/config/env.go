package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables that override config file values.
const (
	EnvTransport   = "TRANSPORT"
	EnvVoicePreset = "VOICE_PRESET"
)

// LoadDotEnv exports KEY=VALUE pairs from path into the process environment,
// overriding existing values. A missing file is not an error.
func LoadDotEnv(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	keys := v.AllKeys()
	exported := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.ToUpper(key)
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		exported = append(exported, name)
	}
	return exported, nil
}

// ApplyEnv overlays TRANSPORT and VOICE_PRESET onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	_ = v.BindEnv("transport", EnvTransport)
	_ = v.BindEnv("voice_preset", EnvVoicePreset)

	if v.IsSet("transport") {
		if transport := strings.TrimSpace(v.GetString("transport")); transport != "" {
			cfg.Transport = transport
		}
	}
	if v.IsSet("voice_preset") {
		if preset := strings.TrimSpace(v.GetString("voice_preset")); preset != "" {
			cfg.VoicePreset = strings.ToLower(preset)
		}
	}
}

// dotEnvPath is the .env file that sits beside the config file.
func dotEnvPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}
