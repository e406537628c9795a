// Package watch implements the relaybus log watch TUI: a live, scrollable
// view of the backend node's log stream over SSE.
package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/relaybus/internal/severity"
)

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	Debug lipgloss.Style
	Info  lipgloss.Style
	Warn  lipgloss.Style
	Error lipgloss.Style
	Fatal lipgloss.Style

	Title  lipgloss.Style
	Header lipgloss.Style
	Dim    lipgloss.Style
	Source lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		Debug: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Info:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Fatal: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Source: lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD")),
	}
}

// SeverityStyle picks the style for a level.
func (t Theme) SeverityStyle(level severity.Severity) lipgloss.Style {
	switch level {
	case severity.Debug:
		return t.Debug
	case severity.Warn:
		return t.Warn
	case severity.Error:
		return t.Error
	case severity.Fatal:
		return t.Fatal
	default:
		return t.Info
	}
}
