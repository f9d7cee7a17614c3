// Package cmd implements the teamrun command line.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/teamrun/internal/config"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/manager"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. TEAMRUN_RUN_TIMEOUT for run.timeout.
const EnvPrefix = "TEAMRUN"

var rootCmd = newRootCmd()

// Process exit codes returned by ExitCode.
const (
	ExitFailure   = 1
	ExitConfig    = 2
	ExitCancelled = 130
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsCancelled(err):
		return ExitCancelled
	case errors.IsConfigError(err), errors.Is(err, errInvalidConfigs):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// FormatError renders an error returned by Execute for the terminal. A
// message not marked safe for users is replaced by its kind; the details
// are in the log.
func FormatError(err error) string {
	msg := err.Error()
	var te errors.TeamrunError
	if errors.As(err, &te) && !errors.IsUserFacing(err) {
		msg = fmt.Sprintf("internal %s error, see the log for details", errors.KindOf(err))
	}
	if errors.IsRetryable(err) {
		msg += " (retryable)"
	}
	label := "Error"
	if errors.GetSeverity(err) == errors.SeverityCritical {
		label = "Critical"
	}
	return label + ": " + msg
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teamrun",
		Short: "Load, build and run multi-agent teams",
		Long: `teamrun loads declarative team configurations (JSON or YAML), builds the
described multi-agent team and runs it on a task, either to completion or as
a stream of events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/teamrun/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newLogsCmd())
	return root
}

// loadViper builds the viper instance for one invocation: defaults, then the
// config file, then TEAMRUN_* variables, then flags.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	config.ApplyDefaults(v)

	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil {
		_ = v.BindPFlag("logging.level", f)
	}
	return v, nil
}

// app holds what a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *event.Bus
	manager *manager.Manager
}

func newApp(cmd *cobra.Command) (*app, error) {
	v, err := loadViper(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Options{
		Dir:      cfg.Logging.Dir,
		Level:    cfg.Logging.Level,
		Rotation: cfg.Logging.Rotation(),
		Console:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(logger)
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", "type", e.EventType())
	})

	mgr, err := manager.NewFromConfig(cfg, logger, bus)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, bus: bus, manager: mgr}, nil
}

func (a *app) Close() error {
	return a.logger.Close()
}
