package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/fmueller/voxstudio/internal/speechapi"
)

type Config struct {
	API struct {
		Token         string        `yaml:"token" env:"VOXSTUDIO_API_TOKEN"`
		TranscribeURL string        `yaml:"transcribe_url" env:"VOXSTUDIO_TRANSCRIBE_URL" env-default:"https://api.fish.audio/v1/asr"`
		SynthesizeURL string        `yaml:"synthesize_url" env:"VOXSTUDIO_SYNTHESIZE_URL" env-default:"https://api.fish.audio/v1/tts"`
		Timeout       time.Duration `yaml:"timeout" env:"VOXSTUDIO_API_TIMEOUT" env-default:"0s"`
	} `yaml:"api"`

	Server struct {
		Addr           string        `yaml:"addr" env:"VOXSTUDIO_ADDR" env-default:"127.0.0.1:8080"`
		AllowedOrigins []string      `yaml:"allowed_origins" env:"VOXSTUDIO_ALLOWED_ORIGINS"`
		RateLimit      int           `yaml:"rate_limit" env:"VOXSTUDIO_RATE_LIMIT" env-default:"60"`
		SessionTTL     time.Duration `yaml:"session_ttl" env:"VOXSTUDIO_SESSION_TTL" env-default:"30m"`
		MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"VOXSTUDIO_MAX_UPLOAD_BYTES" env-default:"33554432"`
	} `yaml:"server"`

	Intake struct {
		StrictSelection bool `yaml:"strict_selection" env:"VOXSTUDIO_STRICT_SELECTION" env-default:"false"`
	} `yaml:"intake"`

	Defaults struct {
		Language    string  `yaml:"language" env:"VOXSTUDIO_LANGUAGE" env-default:"en"`
		VoiceStyle  string  `yaml:"voice_style" env:"VOXSTUDIO_VOICE_STYLE" env-default:"neutral"`
		SpeechSpeed float64 `yaml:"speech_speed" env:"VOXSTUDIO_SPEECH_SPEED" env-default:"1.0"`
	} `yaml:"defaults"`

	Output struct {
		Dir string `yaml:"dir" env:"VOXSTUDIO_OUTPUT_DIR"`
	} `yaml:"output"`
}

// Load reads configuration from defaults, the optional YAML file at path
// and the environment, in that order. A .env file in the working directory
// is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	if strings.TrimSpace(path) == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	} else {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	for key, raw := range map[string]string{
		"api.transcribe_url": c.API.TranscribeURL,
		"api.synthesize_url": c.API.SynthesizeURL,
	} {
		if err := validateEndpoint(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("api.timeout must not be negative"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.SessionTTL <= 0 {
		errs = append(errs, errors.New("server.session_ttl must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if _, err := speechapi.ParseLanguage(c.Defaults.Language); err != nil {
		errs = append(errs, fmt.Errorf("defaults.language: %w", err))
	}
	if _, err := speechapi.ParseVoiceStyle(c.Defaults.VoiceStyle); err != nil {
		errs = append(errs, fmt.Errorf("defaults.voice_style: %w", err))
	}
	if !speechapi.ValidSpeechSpeed(c.Defaults.SpeechSpeed) {
		errs = append(errs, fmt.Errorf("defaults.speech_speed %v outside [%v, %v]",
			c.Defaults.SpeechSpeed, speechapi.MinSpeechSpeed, speechapi.MaxSpeechSpeed))
	}

	return errors.Join(errs...)
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
