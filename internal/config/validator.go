package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "codegen.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidLLMClients returns the list of valid LLM client implementations
func ValidLLMClients() []string {
	return []string{LLMClientHTTP, LLMClientSDK}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateCodeGen()...)
	errors = append(errors, c.validateSwarm()...)
	errors = append(errors, c.validateFiles()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLLMClients(), c.LLM.Client) {
		errors = append(errors, ValidationError{
			Field:   "llm.client",
			Value:   c.LLM.Client,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLLMClients(), ", ")),
		})
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Value:   c.LLM.Model,
			Message: "must not be empty",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Value:   c.LLM.Temperature,
			Message: "must be between 0 and 2",
		})
	}
	if c.LLM.RefineMaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.refine_max_tokens",
			Value:   c.LLM.RefineMaxTokens,
			Message: "must be positive",
		})
	}
	if c.LLM.CrossReferenceMaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.cross_reference_max_tokens",
			Value:   c.LLM.CrossReferenceMaxTokens,
			Message: "must be positive",
		})
	}
	if c.LLM.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_seconds",
			Value:   c.LLM.TimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.LLM.BaseURL != "" {
		if err := validateURL(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Value:   c.LLM.BaseURL,
				Message: err.Error(),
			})
		}
	}

	return errors
}

func (c *Config) validateCodeGen() []ValidationError {
	var errors []ValidationError

	if err := validateURL(c.CodeGen.Endpoint); err != nil {
		errors = append(errors, ValidationError{
			Field:   "codegen.endpoint",
			Value:   c.CodeGen.Endpoint,
			Message: err.Error(),
		})
	}
	if strings.TrimSpace(c.CodeGen.ResultField) == "" {
		errors = append(errors, ValidationError{
			Field:   "codegen.result_field",
			Value:   c.CodeGen.ResultField,
			Message: "must not be empty",
		})
	}
	if c.CodeGen.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "codegen.max_attempts",
			Value:   c.CodeGen.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.CodeGen.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "codegen.retry_delay_seconds",
			Value:   c.CodeGen.RetryDelaySeconds,
			Message: "must be non-negative",
		})
	}
	if c.CodeGen.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "codegen.timeout_seconds",
			Value:   c.CodeGen.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateSwarm() []ValidationError {
	var errors []ValidationError

	for i, name := range c.Swarm.Agents {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("swarm.agents[%d]", i),
				Value:   name,
				Message: "must not be empty",
			})
		}
	}
	if strings.TrimSpace(c.Swarm.ConfigPath) == "" && len(c.Swarm.Agents) == 0 {
		errors = append(errors, ValidationError{
			Field:   "swarm.config_path",
			Value:   c.Swarm.ConfigPath,
			Message: "must be set when swarm.agents is empty",
		})
	}
	if err := validateURL(c.Swarm.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "swarm.base_url",
			Value:   c.Swarm.BaseURL,
			Message: err.Error(),
		})
	}
	if c.Swarm.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "swarm.timeout_seconds",
			Value:   c.Swarm.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateFiles() []ValidationError {
	var errors []ValidationError

	required := []struct {
		field string
		value string
	}{
		{"files.requirements", c.Files.Requirements},
		{"files.index", c.Files.Index},
		{"files.output", c.Files.Output},
		{"files.backup", c.Files.Backup},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must not be empty",
			})
		}
	}
	if c.Files.Output != "" && c.Files.Output == c.Files.Backup {
		errors = append(errors, ValidationError{
			Field:   "files.backup",
			Value:   c.Files.Backup,
			Message: "must differ from files.output",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	level := strings.ToLower(c.Logging.Level)
	if !slices.Contains(ValidLogLevels(), level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	format := strings.ToLower(c.Logging.Format)
	if !slices.Contains(ValidLogFormats(), format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	return nil
}
