package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/teamrun/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View teamrun configuration",
		Long: `View teamrun configuration.

Without arguments, displays the effective configuration: defaults, then the
config file, then TEAMRUN_* environment variables.`,
		RunE: runConfigShow,
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE:  runConfigShow,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		RunE:  runConfigPath,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default config file",
		Long:  `Create a default config file at $XDG_CONFIG_HOME/teamrun/config.yaml with all available options.`,
		RunE:  runConfigInit,
	})
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", v.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "Config file: (none - using defaults)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "teams:")
	fmt.Fprintf(out, "  dir: %s\n", cfg.Teams.Dir)
	fmt.Fprintf(out, "  match: %q\n", cfg.Teams.Match)

	fmt.Fprintln(out, "run:")
	fmt.Fprintf(out, "  timeout: %s\n", cfg.Run.Timeout)
	fmt.Fprintf(out, "  max_concurrent: %d\n", cfg.Run.MaxConcurrent)
	fmt.Fprintf(out, "  max_history: %d\n", cfg.Run.MaxHistory)

	fmt.Fprintln(out, "model:")
	fmt.Fprintf(out, "  base_url: %s\n", cfg.Model.BaseURL)
	fmt.Fprintf(out, "  request_timeout: %s\n", cfg.Model.RequestTimeout)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %q\n", cfg.Logging.Dir)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	config.ApplyDefaults(v)
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}
