package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/Iron-Ham/teamrun/internal/result"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// Printer writes human-readable output. It is not safe for concurrent use.
type Printer struct {
	w      io.Writer
	styles Styles
	width  int
}

// NewPrinter creates a Printer for w. Colors and the line width follow the
// terminal when w is one.
func NewPrinter(w io.Writer) *Printer {
	width := DefaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			width = cols
		}
	}
	return &Printer{w: w, styles: NewStyles(lipgloss.NewRenderer(w)), width: width}
}

// WithWidth overrides the line width.
func (p *Printer) WithWidth(width int) *Printer {
	p.width = width
	return p
}

// Preview flattens s to one line and truncates it to width visual columns.
// Escape sequences are preserved.
func Preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 3 {
		return "..."
	}
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

// Event prints one stream event on a single line.
func (p *Printer) Event(ev result.StreamEvent) {
	prefix := p.styles.Muted.Render(fmt.Sprintf("%3d", ev.Seq))
	switch ev.Type {
	case result.EventAgentTurnStarted:
		p.line(prefix, p.styles.Muted.Render("→ "+ev.Source))
	case result.EventToolInvoked:
		names := make([]string, len(ev.ToolCalls))
		for i, c := range ev.ToolCalls {
			names[i] = c.Name
		}
		p.line(prefix, p.source(ev.Source), p.styles.Tool.Render("tool "+strings.Join(names, ", ")))
	case result.EventToolResult:
		p.line(prefix, p.source(ev.Source), p.styles.Tool.Render("result ")+p.preview(ev.Content, 30))
	case result.EventRunCompleted, result.EventRunFailed, result.EventRunCancelled:
		if ev.Result != nil {
			p.Result(*ev.Result)
			return
		}
		p.line(prefix, p.status(terminalStatus(ev.Type)), p.preview(ev.Error, 20))
	default:
		p.line(prefix, p.source(ev.Source), p.preview(ev.Content, 20))
	}
}

// Result prints the summary of a finished run.
func (p *Printer) Result(res result.TeamResult) {
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "%s %s\n", p.status(res.Status), p.styles.Muted.Render(res.RunID))

	stop := string(res.TaskResult.StopReason)
	if res.TaskResult.StopDetail != "" {
		stop += " (" + res.TaskResult.StopDetail + ")"
	}
	p.field("stop", stop)
	p.field("duration", res.Duration.Round(time.Millisecond).String())
	p.field("messages", fmt.Sprint(len(res.TaskResult.Messages)))
	if res.Usage.PromptTokens > 0 || res.Usage.CompletionTokens > 0 {
		p.field("tokens", fmt.Sprintf("%d prompt, %d completion", res.Usage.PromptTokens, res.Usage.CompletionTokens))
	}
	if res.Error != "" {
		p.field("error", p.styles.Error.Render(res.Error))
	}
}

// Transcript prints every message of a result.
func (p *Printer) Transcript(res result.TeamResult) {
	for _, m := range res.TaskResult.Messages {
		p.line(p.source(m.Source), p.preview(m.Content, 14))
	}
}

// Directory prints the outcome of a directory load.
func (p *Printer) Directory(dir string, res teamconfig.DirectoryResult) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.Title.Render("Teams in"), dir)
	if len(res.Succeeded) == 0 && len(res.Failed) == 0 {
		fmt.Fprintln(p.w, p.styles.Muted.Render("  no team configs found"))
		return
	}
	for _, l := range res.Succeeded {
		p.Loaded(l)
	}
	for _, f := range res.Failed {
		p.Failure(f)
	}
}

// Loaded prints one loaded config.
func (p *Printer) Loaded(l teamconfig.Loaded) {
	cfg := l.Config
	fmt.Fprintf(p.w, "  %s %s %s %s\n",
		p.styles.Success.Render("✓"),
		p.styles.Label.Render(cfg.Name()),
		p.styles.Muted.Render(fmt.Sprintf("%s, %d participants", cfg.Kind(), len(cfg.Participants()))),
		p.styles.Muted.Render(l.Path),
	)
}

// Failure prints one rejected config. The reason is never truncated.
func (p *Printer) Failure(f teamconfig.Failure) {
	fmt.Fprintf(p.w, "  %s %s\n", p.styles.Error.Render("✗"), f.Path)
	fmt.Fprintf(p.w, "    %s\n", f.Reason.Error())
}

// Summary prints the success and failure counts.
func (p *Printer) Summary(ok, failed int) {
	line := fmt.Sprintf("%d valid, %d invalid", ok, failed)
	if failed > 0 {
		fmt.Fprintln(p.w, p.styles.Warning.Render(line))
		return
	}
	fmt.Fprintln(p.w, p.styles.Success.Render(line))
}

func (p *Printer) status(s result.Status) string {
	label := strings.ToUpper(string(s))
	switch s {
	case result.StatusCompleted:
		return p.styles.Success.Render(label)
	case result.StatusCancelled:
		return p.styles.Warning.Render(label)
	case result.StatusFailed:
		return p.styles.Error.Render(label)
	default:
		return p.styles.Muted.Render(label)
	}
}

func terminalStatus(t result.EventType) result.Status {
	switch t {
	case result.EventRunCompleted:
		return result.StatusCompleted
	case result.EventRunCancelled:
		return result.StatusCancelled
	default:
		return result.StatusFailed
	}
}

// source pads or truncates a message source to a fixed column.
func (p *Printer) source(name string) string {
	return p.styles.Source.Render(fmt.Sprintf("%-12s", Preview(name, 12)))
}

func (p *Printer) field(name, value string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.styles.Muted.Render(fmt.Sprintf("%-9s", name)), value)
}

// preview truncates s to the space left after a prefix of used columns.
func (p *Printer) preview(s string, used int) string {
	return Preview(s, p.width-used)
}

func (p *Printer) line(parts ...string) {
	fmt.Fprintln(p.w, strings.Join(parts, " "))
}
