package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
// Tier names are checked by the catalog, not here.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	if cfg.Run.MaxExecution <= 0 {
		v.addError("run.max_execution", "max execution must be positive")
	}
	if cfg.Run.PartialInterval < 0 {
		v.addError("run.partial_interval", "partial interval must be non-negative")
	}
	if cfg.Run.Workers < 0 {
		v.addError("run.workers", "worker budget must be non-negative")
	}
	if cfg.Run.WorkspaceRoot == "" {
		v.addError("run.workspace_root", "workspace root is required")
	}

	switch cfg.Reasoning.Provider {
	case "openai", "anthropic", "none":
	default:
		v.addError("reasoning.provider", fmt.Sprintf("invalid provider '%s', must be one of: openai, anthropic, none", cfg.Reasoning.Provider))
	}
	if cfg.Reasoning.CallTimeout <= 0 {
		v.addError("reasoning.call_timeout", "call timeout must be positive")
	}

	switch cfg.Runtime.Kind {
	case "compose", "none":
	default:
		v.addError("runtime.kind", fmt.Sprintf("invalid runtime '%s', must be one of: compose, none", cfg.Runtime.Kind))
	}
	if cfg.Runtime.ReadyInterval <= 0 {
		v.addError("runtime.ready_interval", "ready interval must be positive")
	}
	if cfg.Runtime.ReadyMaxWait < cfg.Runtime.ReadyInterval {
		v.addError("runtime.ready_max_wait", "ready max wait should be at least the ready interval")
	}

	if cfg.Monitor.Interval <= 0 {
		v.addError("monitor.interval", "interval must be positive")
	}
	if cfg.Monitor.TickTimeout <= 0 {
		v.addError("monitor.tick_timeout", "tick timeout must be positive")
	}
	if cfg.Monitor.Concurrency <= 0 {
		v.addError("monitor.concurrency", "concurrency must be positive")
	}

	if cfg.Validation.Concurrency <= 0 {
		v.addError("validation.concurrency", "concurrency must be positive")
	}
	if cfg.Validation.CheckTimeout <= 0 {
		v.addError("validation.check_timeout", "check timeout must be positive")
	}
	w := cfg.Validation.Weights
	if w.Quality < 0 || w.Performance < 0 || w.Browser < 0 || w.API < 0 {
		v.addError("validation.weights", "weights must be non-negative")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		v.addError("history.path", "history path is required when history is enabled")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
	}

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}
