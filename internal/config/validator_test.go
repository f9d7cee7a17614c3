package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "1. field1") || !strings.Contains(result, "2. field2") {
			t.Errorf("Error() should number entries: %s", result)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:      "invalid match glob",
			modify:    func(c *Config) { c.Teams.Match = "[unterminated" },
			wantField: "teams.match",
		},
		{
			name:      "negative timeout",
			modify:    func(c *Config) { c.Run.Timeout = -time.Second },
			wantField: "run.timeout",
		},
		{
			name:      "negative max concurrent",
			modify:    func(c *Config) { c.Run.MaxConcurrent = -1 },
			wantField: "run.max_concurrent",
		},
		{
			name:      "negative max history",
			modify:    func(c *Config) { c.Run.MaxHistory = -1 },
			wantField: "run.max_history",
		},
		{
			name:      "too many concurrent runs",
			modify:    func(c *Config) { c.Run.MaxConcurrent = maxConcurrentRuns + 1 },
			wantField: "run.max_concurrent",
		},
		{
			name:      "relative base url",
			modify:    func(c *Config) { c.Model.BaseURL = "api.example.com/v1" },
			wantField: "model.base_url",
		},
		{
			name:      "non-http base url",
			modify:    func(c *Config) { c.Model.BaseURL = "ftp://example.com" },
			wantField: "model.base_url",
		},
		{
			name:      "zero request timeout",
			modify:    func(c *Config) { c.Model.RequestTimeout = 0 },
			wantField: "model.request_timeout",
		},
		{
			name:      "unknown log level",
			modify:    func(c *Config) { c.Logging.Level = "trace" },
			wantField: "logging.level",
		},
		{
			name:      "zero log size",
			modify:    func(c *Config) { c.Logging.MaxSizeMB = 0 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "oversized log",
			modify:    func(c *Config) { c.Logging.MaxSizeMB = 2000 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "negative backups",
			modify:    func(c *Config) { c.Logging.MaxBackups = -1 },
			wantField: "logging.max_backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidate_AcceptsEdgeValues(t *testing.T) {
	cfg := Default()
	cfg.Teams.Match = "*.{json,yaml}"
	cfg.Run.Timeout = 0
	cfg.Run.MaxConcurrent = 0
	cfg.Model.BaseURL = ""
	cfg.Logging.Level = "DEBUG"
	cfg.Logging.MaxBackups = 0

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Run.MaxConcurrent = -1
	cfg.Logging.Level = "loud"
	cfg.Model.RequestTimeout = -1

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}
