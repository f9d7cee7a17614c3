package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamrun/internal/logging"
)

func newLogsCmd() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "View run logs",
		Long: `View and filter the log file written when logging.dir is set.

Examples:
  # Show the last 50 entries
  teamrun logs

  # Show every entry of one run
  teamrun logs --run 3f0c... -n 0

  # Follow warnings and errors as they are written
  teamrun logs -f --level warn

  # Search messages and fields
  teamrun logs --grep "teardown|failed"`,
		Args: cobra.NoArgs,
		RunE: runLogs,
	}
	logsCmd.Flags().String("run", "", "only show entries of this run ID")
	logsCmd.Flags().IntP("tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().BoolP("follow", "f", false, "follow log output (like tail -f)")
	logsCmd.Flags().String("level", "", "filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().String("since", "", "show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().String("grep", "", "filter entries matching pattern (regex)")
	return logsCmd
}

// logEntry is a parsed JSON log line.
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "run_id", "component"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects entries. Zero values match everything.
type logFilter struct {
	runID    string
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
}

func newLogFilter(cmd *cobra.Command) (logFilter, error) {
	f := logFilter{minLevel: -1}
	f.runID, _ = cmd.Flags().GetString("run")

	if level, _ := cmd.Flags().GetString("level"); level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(level))
	}
	if since, _ := cmd.Flags().GetString("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if pattern, _ := cmd.Flags().GetString("grep"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// levelPriority orders levels for filtering; unknown levels sort first.
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func (f logFilter) match(e *logEntry) bool {
	if f.runID != "" && e.RunID != f.runID {
		return false
	}
	if f.minLevel >= 0 && levelPriority(e.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && e.Time.Before(f.since) {
		return false
	}
	if f.grep != nil {
		text := e.Msg
		for _, v := range e.Extra {
			text += " " + fmt.Sprint(v)
		}
		if !f.grep.MatchString(text) {
			return false
		}
	}
	return true
}

// logFormatter renders entries, colored when the output is a terminal.
type logFormatter struct {
	muted  lipgloss.Style
	field  lipgloss.Style
	levels map[string]lipgloss.Style
}

func newLogFormatter(w io.Writer) logFormatter {
	r := lipgloss.NewRenderer(w)
	return logFormatter{
		muted: r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		field: r.NewStyle().Foreground(lipgloss.Color("#22D3EE")),
		levels: map[string]lipgloss.Style{
			logging.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
			logging.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
			logging.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
			logging.LevelError: r.NewStyle().Foreground(lipgloss.Color("#F87171")),
		},
	}
}

func (lf logFormatter) format(e *logEntry) string {
	var sb strings.Builder
	level := strings.ToUpper(e.Level)
	sb.WriteString(lf.muted.Render("[" + e.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(lf.levels[level].Render("[" + level + "]"))
	sb.WriteString(" ")
	sb.WriteString(e.Msg)

	if e.Component != "" {
		sb.WriteString(" " + lf.field.Render("component="+e.Component))
	}
	if e.RunID != "" {
		sb.WriteString(" " + lf.field.Render("run_id="+e.RunID))
	}
	for _, key := range slices.Sorted(maps.Keys(e.Extra)) {
		sb.WriteString(" " + lf.field.Render(key+"=") + fmt.Sprint(e.Extra[key]))
	}
	return sb.String()
}

// formatLine renders one raw line; ok is false when the entry is filtered
// out. Lines that are not JSON are shown as they are.
func (lf logFormatter) formatLine(line string, f logFilter) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, f.runID == "" && f.grep == nil
	}
	if !f.match(&entry) {
		return "", false
	}
	return lf.format(&entry), true
}

func runLogs(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	dir := v.GetString("logging.dir")
	if dir == "" {
		return errors.New("logging.dir is not set; logs go to stderr")
	}
	logPath := filepath.Join(dir, logging.LogFileName)

	filter, err := newLogFilter(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	if follow, _ := cmd.Flags().GetBool("follow"); follow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, out, logPath, filter)
	}
	tail, _ := cmd.Flags().GetInt("tail")
	return displayLogs(out, logPath, tail, filter)
}

// displayLogs prints the last tail matching entries.
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	lf := newLogFormatter(out)
	var entries []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if s, ok := lf.formatLine(line, filter); ok {
			entries = append(entries, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, e := range entries {
		fmt.Fprintln(out, e)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs prints matching entries appended after it starts, until ctx
// is done.
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	fmt.Fprint(out, "Following logs... (Ctrl+C to stop)\n\n")

	lf := newLogFormatter(out)
	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var partial string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// The writer may be mid-line.
			partial += line
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		line, partial = strings.TrimSpace(partial+line), ""
		if line == "" {
			continue
		}
		if s, ok := lf.formatLine(line, filter); ok {
			fmt.Fprintln(out, s)
		}
	}
}
