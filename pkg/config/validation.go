package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Backoff bounds must be ordered
	if cfg.Engine.Backoff.Max < cfg.Engine.Backoff.Initial {
		return fmt.Errorf("engine.backoff: max (%s) must be >= initial (%s)",
			cfg.Engine.Backoff.Max, cfg.Engine.Backoff.Initial)
	}

	// The selected backends must carry their required fields. Tags cannot
	// express this because the sections are free-form maps.
	switch cfg.Remote.Type {
	case "filesystem":
		if root, _ := cfg.Remote.Filesystem["root"].(string); root == "" {
			return fmt.Errorf("remote.filesystem: root is required")
		}
	case "s3":
		if bucket, _ := cfg.Remote.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("remote.s3: bucket is required")
		}
		if region, _ := cfg.Remote.S3["region"].(string); region == "" {
			return fmt.Errorf("remote.s3: region is required")
		}
	}

	if cfg.Index.Type == "badger" {
		dir, _ := cfg.Index.Badger["dir"].(string)
		inMemory, _ := cfg.Index.Badger["in_memory"].(bool)
		if dir == "" && !inMemory {
			return fmt.Errorf("index.badger: dir is required unless in_memory is true")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
