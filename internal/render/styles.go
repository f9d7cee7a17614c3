// Package render formats loaded configs, stream events and run results for
// the terminal.
package render

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark backgrounds.
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	toolColor    = lipgloss.Color("#60A5FA") // Blue
)

// Styles holds the styles bound to one output's renderer. Without a
// terminal the renderer drops colors and the styles render plain text.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Source  lipgloss.Style
	Muted   lipgloss.Style
	Tool    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles builds the palette for r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(primaryColor),
		Label:   r.NewStyle().Bold(true),
		Source:  r.NewStyle().Foreground(primaryColor),
		Muted:   r.NewStyle().Foreground(mutedColor),
		Tool:    r.NewStyle().Foreground(toolColor),
		Success: r.NewStyle().Bold(true).Foreground(successColor),
		Warning: r.NewStyle().Bold(true).Foreground(warningColor),
		Error:   r.NewStyle().Bold(true).Foreground(errorColor),
	}
}
