package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvTransport, "")
	t.Setenv(EnvVoicePreset, "")
}

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "voxmcp", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "voxmcp", "config.jsonc"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
	require.Empty(t, loaded.DotEnv)
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "transport": "daily",
  "voice_preset": "deepgram",
  "audio": {
    "input": "default",
    "fallback": "default"
  }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "daily", loaded.Config.Transport)
	require.Equal(t, "deepgram", loaded.Config.VoicePreset)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"daily","voice_preset":"groq"}`), 0o600))

	t.Setenv(EnvTransport, "livekit")
	t.Setenv(EnvVoicePreset, "Cartesia")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "livekit", loaded.Config.Transport)
	require.Equal(t, "cartesia", loaded.Config.VoicePreset)
}

func TestLoadDotEnvBesideConfigOverridesEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GROQ_API_KEY", "from-shell")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GROQ_API_KEY=from-dotenv\nVOICE_PRESET=kokoro\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.False(t, loaded.Exists)
	require.ElementsMatch(t, []string{"GROQ_API_KEY", "VOICE_PRESET"}, loaded.DotEnv)
	require.Equal(t, "from-dotenv", os.Getenv("GROQ_API_KEY"))
	require.Equal(t, "kokoro", loaded.Config.VoicePreset)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	t.Setenv(EnvTransport, "   ")
	t.Setenv(EnvVoicePreset, "")

	cfg := Default()
	ApplyEnv(&cfg)
	require.Equal(t, "webrtc", cfg.Transport)
	require.Equal(t, "groq", cfg.VoicePreset)
}

func TestWarningString(t *testing.T) {
	require.Equal(t, "line 3: bad", Warning{Line: 3, Message: "bad"}.String())
	require.Equal(t, "bad", Warning{Message: " bad "}.String())
}
