package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamrun/internal/component"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/manager"
	"github.com/Iron-Ham/teamrun/internal/render"
	"github.com/Iron-Ham/teamrun/internal/result"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run a team on a task",
		Long: `Build the team described by a config file and run it on a task.

Environment overrides (--env, --env-file) are visible only to this run's
components. Interrupting the command cancels the run cooperatively; the
partial result is still printed.

Examples:
  teamrun run teams/writers.yaml --task "Write a haiku"
  teamrun run team.json --task "Plan a trip" --stream --env OPENAI_API_KEY=sk-...`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
	runCmd.Flags().StringP("task", "t", "", "task given to the team (required)")
	runCmd.Flags().Bool("stream", false, "print events as they happen")
	runCmd.Flags().StringArrayP("env", "e", nil, "environment override KEY=VALUE (repeatable)")
	runCmd.Flags().StringArray("env-file", nil, "dotenv file with environment overrides (repeatable)")
	runCmd.Flags().Duration("timeout", 0, "cancel the run after this long (default run.timeout)")
	runCmd.Flags().String("run-id", "", "use this run ID instead of a generated one")
	runCmd.Flags().Bool("json", false, "print JSON instead of text")
	_ = runCmd.MarkFlagRequired("task")
	return runCmd
}

// parseEnv merges env files (later files win) and then KEY=VALUE pairs.
func parseEnv(files, pairs []string) (map[string]string, error) {
	env, err := component.ReadEnvFiles(files...)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q: expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	task, _ := cmd.Flags().GetString("task")
	stream, _ := cmd.Flags().GetBool("stream")
	asJSON, _ := cmd.Flags().GetBool("json")
	pairs, _ := cmd.Flags().GetStringArray("env")
	files, _ := cmd.Flags().GetStringArray("env-file")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	runID, _ := cmd.Flags().GetString("run-id")

	env, err := parseEnv(files, pairs)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := manager.RunOptions{Env: env, RunID: runID, Timeout: timeout}
	out := cmd.OutOrStdout()
	p := render.NewPrinter(out)

	if stream {
		s, err := a.manager.RunStream(ctx, args[0], task, opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		var last result.StreamEvent
		for ev := range s.All() {
			last = ev
			if asJSON {
				if err := enc.Encode(ev); err != nil {
					s.Close()
					return err
				}
				continue
			}
			p.Event(ev)
		}
		if last.Result != nil {
			return outcome(*last.Result, s.Err())
		}
		return s.Err()
	}

	res, err := a.manager.Run(ctx, args[0], task, opts)
	if res == nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	} else {
		p.Transcript(*res)
		p.Result(*res)
	}
	return outcome(*res, err)
}

// outcome maps a finished run to the command's error: nil only when the run
// completed.
func outcome(res result.TeamResult, err error) error {
	switch {
	case err != nil:
		return err
	case res.Status == result.StatusCancelled:
		return fmt.Errorf("run %s: %w", res.RunID, errors.ErrRunCancelled)
	case res.Status != result.StatusCompleted:
		return fmt.Errorf("run %s %s", res.RunID, res.Status)
	}
	return nil
}
