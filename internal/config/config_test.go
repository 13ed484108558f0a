package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOXSTUDIO_API_TOKEN", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://api.fish.audio/v1/asr", cfg.API.TranscribeURL)
	require.Equal(t, "https://api.fish.audio/v1/tts", cfg.API.SynthesizeURL)
	require.Zero(t, cfg.API.Timeout)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	require.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
	require.False(t, cfg.Intake.StrictSelection)
	require.Equal(t, "en", cfg.Defaults.Language)
	require.Equal(t, "neutral", cfg.Defaults.VoiceStyle)
	require.Equal(t, 1.0, cfg.Defaults.SpeechSpeed)
}

func TestLoadYAMLThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
api:
  token: from-file
  timeout: 45s
server:
  addr: ":9000"
  allowed_origins: ["http://localhost:5173"]
intake:
  strict_selection: true
defaults:
  language: yue
  voice_style: calm
  speech_speed: 1.25
`)
	t.Setenv("VOXSTUDIO_API_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.API.Token)
	require.Equal(t, 45*time.Second, cfg.API.Timeout)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	require.True(t, cfg.Intake.StrictSelection)
	require.Equal(t, "yue", cfg.Defaults.Language)
	require.Equal(t, "calm", cfg.Defaults.VoiceStyle)
	require.Equal(t, 1.25, cfg.Defaults.SpeechSpeed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("VOXSTUDIO_SPEECH_SPEED", "3")
	t.Setenv("VOXSTUDIO_LANGUAGE", "fr")

	_, err := Load("")
	require.ErrorContains(t, err, "defaults.speech_speed")
	require.ErrorContains(t, err, "defaults.language")
}

func TestLoadDotEnvKeepsExistingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "VOXSTUDIO_DOTENV_PROBE=from-dotenv\nVOXSTUDIO_DOTENV_KEEP=from-dotenv\n")
	t.Setenv("VOXSTUDIO_DOTENV_KEEP", "from-shell")
	t.Cleanup(func() { _ = os.Unsetenv("VOXSTUDIO_DOTENV_PROBE") })

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "from-dotenv", os.Getenv("VOXSTUDIO_DOTENV_PROBE"))
	require.Equal(t, "from-shell", os.Getenv("VOXSTUDIO_DOTENV_KEEP"))
}

func TestLoadDotEnvMissingIsFine(t *testing.T) {
	t.Parallel()

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		var c Config
		c.API.TranscribeURL = "http://127.0.0.1:9/asr"
		c.API.SynthesizeURL = "https://tts.example.test/v1/tts"
		c.Server.SessionTTL = time.Minute
		c.Server.MaxUploadBytes = 1
		c.Defaults.Language = "zh-CN"
		c.Defaults.VoiceStyle = "friendly"
		c.Defaults.SpeechSpeed = 2.0
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad scheme", mutate: func(c *Config) { c.API.TranscribeURL = "ftp://host/asr" }, wantErr: "api.transcribe_url"},
		{name: "missing host", mutate: func(c *Config) { c.API.SynthesizeURL = "https:///tts" }, wantErr: "api.synthesize_url"},
		{name: "negative timeout", mutate: func(c *Config) { c.API.Timeout = -time.Second }, wantErr: "api.timeout"},
		{name: "zero ttl", mutate: func(c *Config) { c.Server.SessionTTL = 0 }, wantErr: "server.session_ttl"},
		{name: "negative rate", mutate: func(c *Config) { c.Server.RateLimit = -1 }, wantErr: "server.rate_limit"},
		{name: "unknown voice", mutate: func(c *Config) { c.Defaults.VoiceStyle = "robot" }, wantErr: "defaults.voice_style"},
		{name: "slow speed", mutate: func(c *Config) { c.Defaults.SpeechSpeed = 0.25 }, wantErr: "defaults.speech_speed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
