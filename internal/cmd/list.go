package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamrun/internal/render"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// watchDebounce coalesces bursts of file events, e.g. editors writing a
// temp file and renaming it.
const watchDebounce = 200 * time.Millisecond

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List the teams in a directory",
		Long: `List the team configurations in a directory (teams.dir by default).

With --watch the list is printed again whenever a config file changes, until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runList,
	}
	listCmd.Flags().String("match", "", "only load files whose base name matches this glob")
	listCmd.Flags().BoolP("watch", "w", false, "reprint when configs change")
	return listCmd
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Teams.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	loader := a.manager.Loader()
	if pattern, _ := cmd.Flags().GetString("match"); pattern != "" {
		loader, err = teamconfig.NewLoader(
			teamconfig.WithLogger(a.logger),
			teamconfig.WithBus(a.bus),
			teamconfig.WithMatch(pattern),
		)
		if err != nil {
			return err
		}
	}

	p := render.NewPrinter(cmd.OutOrStdout())
	res, err := loader.LoadDirectory(dir)
	if err != nil {
		return err
	}
	p.Directory(dir, res)

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := loader.Watch(dir, watchDebounce, func(res teamconfig.DirectoryResult, err error) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout())
		p.Directory(dir, res)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	<-ctx.Done()
	return nil
}
