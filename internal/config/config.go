// Package config loads aci settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// Config holds every setting shared by the aci binaries.
type Config struct {
	// DataAddr is the base URL of a remote data service. Empty selects the
	// embedded engine rooted at DataDir.
	DataAddr string `env:"ACI_DATA_ADDR"`
	DataDir  string `env:"ACI_DATA_DIR" envDefault:"./data"`

	Username string `env:"ACI_USERNAME"`
	Password string `env:"ACI_PASSWORD"`
	Token    string `env:"ACI_TOKEN"`

	LogLevel  string `env:"ACI_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ACI_LOG_FORMAT" envDefault:"console"`

	ResolverMaxRounds int `env:"ACI_RESOLVER_MAX_ROUNDS" envDefault:"100"`

	HTTPPort    string        `env:"ACI_HTTP_PORT" envDefault:"7002"`
	HTTPTimeout time.Duration `env:"ACI_HTTP_TIMEOUT" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.ResolverMaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("ACI_RESOLVER_MAX_ROUNDS must be positive, got %d", c.ResolverMaxRounds))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ACI_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("ACI_LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}
	if c.DataAddr == "" && c.DataDir == "" {
		errs = append(errs, errors.New("one of ACI_DATA_ADDR or ACI_DATA_DIR must be set"))
	}
	return errors.Join(errs...)
}

// Remote reports whether a remote data service is configured.
func (c *Config) Remote() bool {
	return c.DataAddr != ""
}

// User returns the configured credentials.
func (c *Config) User() *schema.User {
	return &schema.User{Username: c.Username, Password: c.Password, Token: c.Token}
}
