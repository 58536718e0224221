// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type AudioBackend string

const (
	AudioBackendMiniaudio AudioBackend = "miniaudio"
	AudioBackendPortaudio AudioBackend = "portaudio"
	AudioBackendNone      AudioBackend = "none"
)

type Config struct {
	Addr string `env:"EMA_ADDR" envDefault:":8000"`

	GroqAPIKey string `env:"GROQ_API_KEY"`
	GroqModel  string `env:"GROQ_MODEL" envDefault:"llama-3.1-8b-instant"`

	// SystemPrompt overrides the assistant persona. Empty keeps the default.
	SystemPrompt string `env:"EMA_SYSTEM_PROMPT"`

	DeepgramAPIKey string       `env:"DEEPGRAM_API_KEY"`
	AudioBackend   AudioBackend `env:"EMA_AUDIO_BACKEND" envDefault:"miniaudio"`

	HandlerTimeout time.Duration `env:"EMA_HANDLER_TIMEOUT" envDefault:"30s"`
	QueueCapacity  int           `env:"EMA_QUEUE_CAPACITY" envDefault:"64"`

	UserName string `env:"EMA_USER_NAME" envDefault:"Master"`
}

// DefaultEnvFile is read by Load when no files are named.
const DefaultEnvFile = ".env"

// Load reads envFiles into the process environment without overriding
// variables that are already set, then parses the environment. Missing env
// files are not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", file, err)
		}
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio, AudioBackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.AudioBackend))
	}
	if c.HandlerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("handler timeout must be positive, got %s", c.HandlerTimeout))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity))
	}
	return errors.Join(errs...)
}

// ReasoningEnabled reports whether an LLM can be used.
func (c Config) ReasoningEnabled() bool {
	return c.GroqAPIKey != ""
}

// AudioEnabled reports whether voice capture and speech can run.
func (c Config) AudioEnabled() bool {
	return c.DeepgramAPIKey != "" && c.AudioBackend != AudioBackendNone
}
