package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
)

var validate = validator.New()

// Validate checks struct tags, then rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Backend.Mode == "http" && strings.TrimSpace(cfg.Backend.URL) == "" {
		return errors.New("backend.url: required when backend.mode is http")
	}
	if !fmpath.HasPrefix(cfg.Layout.Home, cfg.Layout.Root) {
		return fmt.Errorf("layout.home: %q is not under layout.root %q", cfg.Layout.Home, cfg.Layout.Root)
	}
	if cfg.Backend.Mode == "mock" {
		if _, err := cfg.Backend.MockConfig(); err != nil {
			return err
		}
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
