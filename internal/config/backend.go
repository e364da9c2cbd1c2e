package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/webfm/webfm_sdk_go/internal/httpx"
	"github.com/webfm/webfm_sdk_go/pkg/policy"
)

// MockConfig configures the in-memory backend.
type MockConfig struct {
	Hostname string `mapstructure:"hostname"`
	// Seed is a devseed YAML or JSON file loaded at start.
	Seed string `mapstructure:"seed"`
}

// MockConfig decodes the backend.mock section.
func (b BackendConfig) MockConfig() (MockConfig, error) {
	cfg := MockConfig{Hostname: "mock"}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return MockConfig{}, fmt.Errorf("backend.mock: create decoder: %w", err)
	}
	if err := decoder.Decode(b.Mock); err != nil {
		return MockConfig{}, fmt.Errorf("backend.mock: %w", err)
	}
	return cfg, nil
}

// ResolvedMode turns auto into http or mock.
func (b BackendConfig) ResolvedMode() string {
	if b.Mode != "auto" {
		return b.Mode
	}
	if strings.TrimSpace(b.URL) != "" {
		return "http"
	}
	return "mock"
}

// HTTPOptions returns the httpx options for the configured timeout and retries.
func (b BackendConfig) HTTPOptions() []httpx.Option {
	return []httpx.Option{
		httpx.WithTimeout(b.Timeout),
		httpx.WithRetryPolicy(httpx.RetryPolicy{
			MaxRetries: b.Retry.MaxRetries,
			BaseDelay:  b.Retry.BaseDelay,
			MaxDelay:   b.Retry.MaxDelay,
			Jitter:     httpx.DefaultRetryPolicy.Jitter,
		}),
	}
}

// Policy builds the permission rules described by the layout.
func (l LayoutConfig) Policy() *policy.Policy {
	return policy.New(
		policy.WithRoot(l.Root),
		policy.WithHome(l.Home),
		policy.WithHomes(l.Homes...),
		policy.WithAllowedTypes(l.AllowedTypes...),
	)
}
