package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "run.max_concurrent")
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

// maxConcurrentRuns is the upper bound accepted for run.max_concurrent.
const maxConcurrentRuns = 256

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTeams()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateModel()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateTeams() []ValidationError {
	var errors []ValidationError

	if c.Teams.Match != "" {
		if _, err := glob.Compile(c.Teams.Match); err != nil {
			errors = append(errors, ValidationError{
				Field:   "teams.match",
				Value:   c.Teams.Match,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.timeout",
			Value:   c.Run.Timeout,
			Message: "must be non-negative",
		})
	}

	if c.Run.MaxConcurrent < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.max_concurrent",
			Value:   c.Run.MaxConcurrent,
			Message: "must be non-negative",
		})
	} else if c.Run.MaxConcurrent > maxConcurrentRuns {
		errors = append(errors, ValidationError{
			Field:   "run.max_concurrent",
			Value:   c.Run.MaxConcurrent,
			Message: fmt.Sprintf("exceeds maximum of %d", maxConcurrentRuns),
		})
	}

	if c.Run.MaxHistory < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.max_history",
			Value:   c.Run.MaxHistory,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateModel() []ValidationError {
	var errors []ValidationError

	if c.Model.BaseURL != "" {
		u, err := url.Parse(c.Model.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "model.base_url",
				Value:   c.Model.BaseURL,
				Message: "must be an absolute http or https URL",
			})
		}
	}

	if c.Model.RequestTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "model.request_timeout",
			Value:   c.Model.RequestTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
