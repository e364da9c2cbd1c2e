// Package config loads CLI and sandbox settings from a YAML file and WEBFM_*
// environment variables.
//
// Precedence, highest first: environment, file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "WEBFM"

// Config is the complete configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Backend BackendConfig `mapstructure:"backend"`
	Layout  LayoutConfig  `mapstructure:"layout"`
	Upload  UploadConfig  `mapstructure:"upload"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR; normalized to upper case.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// BackendConfig selects the service the client talks to.
type BackendConfig struct {
	// Mode is http, mock, or auto (http when URL is set).
	Mode    string        `mapstructure:"mode" validate:"required,oneof=http mock auto"`
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	// Timeout bounds connecting and waiting for response headers. Transfer
	// bodies are bounded only by the caller's context.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retry   RetryConfig   `mapstructure:"retry"`

	// Mock holds MockConfig fields; only read in mock mode.
	Mock map[string]any `mapstructure:"mock"`
}

// RetryConfig bounds retries of idempotent requests.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

// LayoutConfig describes the device's directory layout and upload rules.
type LayoutConfig struct {
	Root         string   `mapstructure:"root" validate:"required,startswith=/"`
	Home         string   `mapstructure:"home" validate:"required,startswith=/"`
	Homes        []string `mapstructure:"homes" validate:"required,min=1,dive,required"`
	AllowedTypes []string `mapstructure:"allowed_types" validate:"dive,required"`
	// Vendor prefixes the device name in breadcrumbs.
	Vendor string `mapstructure:"vendor"`
}

// UploadConfig tunes folder uploads.
type UploadConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}

// keys are bound to the environment so WEBFM_BACKEND_URL and friends work
// without a config file.
var keys = []string{
	"logging.level", "logging.format", "logging.output",
	"backend.mode", "backend.url", "backend.timeout",
	"backend.retry.max_retries", "backend.retry.base_delay", "backend.retry.max_delay",
	"backend.mock.hostname", "backend.mock.seed",
	"layout.root", "layout.home", "layout.homes", "layout.allowed_types", "layout.vendor",
	"upload.concurrency",
}

// Load reads configPath (or the default location when empty), applies the
// environment and defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	// Zero is a valid retry count, so this default cannot live in ApplyDefaults.
	v.SetDefault("backend.retry.max_retries", 3)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", configPath, err)
	}
	return nil
}

// configDir is $XDG_CONFIG_HOME/webfm, ~/.config/webfm, or ".".
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "webfm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "webfm")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
