package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/render"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// errInvalidConfigs makes the process exit non-zero after the report has
// been printed.
var errInvalidConfigs = errors.New("one or more team configs are invalid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Check team configurations",
		Long: `Load each file, or every recognized file in each directory, and report
which team configurations are valid. Exits non-zero when any is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	loader := a.manager.Loader()
	p := render.NewPrinter(cmd.OutOrStdout())

	var ok, failed int
	for _, path := range args {
		isDir, err := afero.IsDir(loader.Fs(), path)
		if err == nil && isDir {
			res, err := loader.LoadDirectory(path)
			if err != nil {
				p.Failure(teamconfig.Failure{Path: path, Reason: err})
				failed++
				continue
			}
			p.Directory(path, res)
			ok += len(res.Succeeded)
			failed += len(res.Failed)
			continue
		}

		cfg, err := loader.LoadOne(path)
		if err != nil {
			p.Failure(teamconfig.Failure{Path: path, Reason: err})
			failed++
			continue
		}
		p.Loaded(teamconfig.Loaded{Path: path, Config: cfg})
		ok++
	}

	p.Summary(ok, failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalidConfigs, failed, ok+failed)
	}
	return nil
}
