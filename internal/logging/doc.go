// Package logging provides structured logging for teamrun.
//
// It wraps Go's log/slog package to provide JSON-formatted logs with
// run and team context for debugging and post-hoc analysis.
//
// Logging defaults to the console. When a log directory is configured
// (logging.dir), entries are written as JSON lines to teamrun.log in that
// directory and rotated by size:
//
//	logger, err := logging.NewLogger(logging.Options{
//		Dir:      cfg.Logging.Dir,
//		Level:    cfg.Logging.Level,
//		Rotation: cfg.Logging.Rotation(),
//	})
//	runLog := logger.WithTeam("Writers", "round_robin").WithRun(runID)
//	runLog.Info("run started", "task", task)
//
// Console output uses a colorized handler when stderr is a terminal and
// plain JSON otherwise, so piped output stays machine-readable.
package logging
