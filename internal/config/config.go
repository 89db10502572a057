package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config is read from the environment. Cobra flags override individual fields.
type Config struct {
	APIKey      string `env:"GEMINI_API_KEY"`
	APIKeyAlias string `env:"API_KEY"`
	BaseURL     string `env:"GEMINI_BASE_URL"`

	TextModel      string        `env:"STUDIO_TEXT_MODEL" envDefault:"gemini-2.5-flash"`
	ImageModel     string        `env:"STUDIO_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	RequestTimeout time.Duration `env:"STUDIO_REQUEST_TIMEOUT" envDefault:"3m"`

	DataDir string `env:"STUDIO_DATA_DIR"`
	Journal bool   `env:"STUDIO_JOURNAL" envDefault:"true"`

	LogLevel  string `env:"STUDIO_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STUDIO_LOG_FORMAT" envDefault:"console"`

	ProbeAddr    string        `env:"STUDIO_PROBE_ADDR" envDefault:"generativelanguage.googleapis.com:443"`
	ProbeTimeout time.Duration `env:"STUDIO_PROBE_TIMEOUT" envDefault:"3s"`

	HTTPAddr string `env:"STUDIO_HTTP_ADDR" envDefault:":8080"`
}

// Key returns GEMINI_API_KEY, falling back to API_KEY.
func (c *Config) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return c.APIKeyAlias
}

func (c *Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STUDIO_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STUDIO_PROBE_TIMEOUT must be positive, got %s", c.ProbeTimeout))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("STUDIO_LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}
	if c.ImageModel == "" || c.TextModel == "" {
		errs = append(errs, errors.New("model names must not be empty"))
	}
	return errors.Join(errs...)
}

// ImageDir is where journaled renders are written.
func (c *Config) ImageDir() string {
	return filepath.Join(c.DataDir, "images")
}

// Load reads optional dotenv files and then parses the process environment.
// Variables already set in the environment win over dotenv values.
func Load(dotenv ...string) (*Config, error) {
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// FromMap parses cfg from vars only. Used by tests and embedders.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".prodstudio")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
