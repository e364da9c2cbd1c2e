package config

import (
	"strings"
	"time"

	"github.com/webfm/webfm_sdk_go/pkg/policy"
	"github.com/webfm/webfm_sdk_go/pkg/session"
)

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyBackendDefaults(&cfg.Backend)
	applyLayoutDefaults(&cfg.Layout)

	if cfg.Upload.Concurrency == 0 {
		cfg.Upload.Concurrency = session.DefaultUploadConcurrency
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyBackendDefaults(cfg *BackendConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "auto"
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 250 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 2 * time.Second
	}
	if cfg.Mock == nil {
		cfg.Mock = make(map[string]any)
	}
}

func applyLayoutDefaults(cfg *LayoutConfig) {
	if cfg.Root == "" {
		cfg.Root = policy.DefaultRoot
	}
	if cfg.Home == "" {
		cfg.Home = policy.DefaultHome
	}
	if len(cfg.Homes) == 0 {
		cfg.Homes = append([]string(nil), policy.DefaultHomes...)
	}
	if cfg.AllowedTypes == nil {
		cfg.AllowedTypes = append([]string(nil), policy.DefaultAllowedTypes...)
	}
}
