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
// via struct tags, with additional custom validation for rules that cannot
// be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if _, err := ParseMode(cfg.Storage.FileMode); err != nil {
		return fmt.Errorf("storage.file_mode: %w", err)
	}
	if _, err := ParseMode(cfg.Storage.DirMode); err != nil {
		return fmt.Errorf("storage.dir_mode: %w", err)
	}

	http := cfg.Adapters.HTTP
	if http.Threads < 1 {
		return fmt.Errorf("adapters.http.threads: must be >= 1, got %d", http.Threads)
	}
	if http.HeaderBufferSize < 4 {
		return fmt.Errorf("adapters.http.header_buffer_size: must be >= 4, got %d", http.HeaderBufferSize)
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == http.Port && http.Port != 0 {
		return fmt.Errorf("server.metrics.port: %d is already used by the HTTP adapter", http.Port)
	}

	auditCfg := cfg.Audit
	if auditCfg.Type == "file" || auditCfg.Type == "tee" {
		if path, _ := auditCfg.File["path"].(string); path == "" {
			return fmt.Errorf("audit.file.path: required when audit.type is %s", auditCfg.Type)
		}
	}
	if auditCfg.Type == "badger" || auditCfg.Type == "tee" {
		inMemory, _ := auditCfg.Badger["in_memory"].(bool)
		if path, _ := auditCfg.Badger["db_path"].(string); path == "" && !inMemory {
			return fmt.Errorf("audit.badger.db_path: required unless in_memory is set")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
