package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/teamrun/internal/logging"
)

// Config represents the complete teamrun configuration
type Config struct {
	Teams   TeamsConfig   `mapstructure:"teams"`
	Run     RunConfig     `mapstructure:"run"`
	Model   ModelConfig   `mapstructure:"model"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TeamsConfig controls where team configurations are discovered
type TeamsConfig struct {
	// Dir is the directory scanned by `teamrun list` when no argument is given.
	Dir string `mapstructure:"dir"`
	// Match is a glob applied to file base names during directory loads
	// (e.g., "*.team.yaml"). Empty matches every recognized file.
	Match string `mapstructure:"match"`
}

// RunConfig controls team execution
type RunConfig struct {
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxConcurrent caps runs submitted in the background. Zero means unlimited.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxHistory caps finished runs kept for status and result lookups.
	// The oldest are evicted first.
	MaxHistory int `mapstructure:"max_history"`
}

// ModelConfig holds defaults for model clients built from team configs.
type ModelConfig struct {
	// BaseURL is used when a model client config omits base_url.
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds each model HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir holds teamrun.log. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the size at which the log file is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress"`
}

// Rotation converts the logging section into a rotation config.
func (c LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Teams: TeamsConfig{
			Dir: "teams",
		},
		Run: RunConfig{
			Timeout:       10 * time.Minute,
			MaxConcurrent: 4,
			MaxHistory:    100,
		},
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			RequestTimeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	ApplyDefaults(viper.GetViper())
}

// ApplyDefaults registers default values with v
func ApplyDefaults(v *viper.Viper) {
	defaults := Default()

	// Teams defaults
	v.SetDefault("teams.dir", defaults.Teams.Dir)
	v.SetDefault("teams.match", defaults.Teams.Match)

	// Run defaults
	v.SetDefault("run.timeout", defaults.Run.Timeout)
	v.SetDefault("run.max_concurrent", defaults.Run.MaxConcurrent)
	v.SetDefault("run.max_history", defaults.Run.MaxHistory)

	// Model defaults
	v.SetDefault("model.base_url", defaults.Model.BaseURL)
	v.SetDefault("model.request_timeout", defaults.Model.RequestTimeout)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the teamrun configuration directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "teamrun")
	}
	// Fall back to ~/.config/teamrun
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teamrun"
	}
	return filepath.Join(home, ".config", "teamrun")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
