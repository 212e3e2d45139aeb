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
	// Remote names are unique
	names := make(map[string]bool)
	for i, r := range cfg.Remotes {
		if names[r.Name] {
			return fmt.Errorf("remotes[%d]: duplicate remote name %q", i, r.Name)
		}
		names[r.Name] = true
	}

	if err := validateStore("store", &cfg.Store); err != nil {
		return err
	}
	for i := range cfg.Remotes {
		if err := validateStore(fmt.Sprintf("remotes[%d].store", i), &cfg.Remotes[i].Store); err != nil {
			return err
		}
	}

	return nil
}

// validateStore checks the type-specific sections a store needs.
func validateStore(field string, cfg *StoreConfig) error {
	switch cfg.Type {
	case "badger":
		inMemory, _ := cfg.Badger["in_memory"].(bool)
		if path, _ := cfg.Badger["db_path"].(string); path == "" && !inMemory {
			return fmt.Errorf("%s: badger store requires db_path or in_memory", field)
		}
	case "mongo":
		if uri, _ := cfg.Mongo["uri"].(string); uri == "" {
			return fmt.Errorf("%s: mongo store requires uri", field)
		}
		if db, _ := cfg.Mongo["database"].(string); db == "" {
			return fmt.Errorf("%s: mongo store requires database", field)
		}
	}

	switch cfg.Content.Type {
	case "filesystem":
		if path, _ := cfg.Content.Filesystem["path"].(string); path == "" {
			return fmt.Errorf("%s.content: filesystem content store requires path", field)
		}
	case "s3":
		if bucket, _ := cfg.Content.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("%s.content: s3 content store requires bucket", field)
		}
		if region, _ := cfg.Content.S3["region"].(string); region == "" {
			return fmt.Errorf("%s.content: s3 content store requires region", field)
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
