// Package config handles loading and validating relay configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the chatrelay server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Models   ModelsConfig   `koanf:"models"`
	Store    StoreConfig    `koanf:"store"`
}

// ServerConfig holds HTTP server settings.
//
// WriteTimeout bounds the whole response, which for an SSE stream means
// the whole reply — leave it 0 (disabled) unless you want long generations
// cut off mid-stream. Idle upstream detection is the fragment timeout's
// job, not the HTTP server's.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ProviderConfig holds the settings for the upstream LLM provider.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`

	// FragmentTimeout is the bounded wait for the first and for each
	// subsequent token fragment. 0 disables the bound.
	FragmentTimeout time.Duration `koanf:"fragment_timeout"`
}

// ModelsConfig holds the model catalog: the default used when a request
// names no model, and the set a request may name.
type ModelsConfig struct {
	Default   string   `koanf:"default"`
	Available []string `koanf:"available"`
}

// StoreConfig holds message persistence settings.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "CHATRELAY_" can override a config value:
	//   CHATRELAY_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("CHATRELAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "CHATRELAY_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand a ${VAR_NAME} placeholder in the provider API key, so the
	// secret itself stays out of the YAML file.
	if key := cfg.Provider.APIKey; strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		cfg.Provider.APIKey = os.Getenv(key[2 : len(key)-1])
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("config: server.port is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("config: provider.base_url is required")
	}
	if c.Models.Default == "" {
		return fmt.Errorf("config: models.default is required")
	}
	return nil
}
