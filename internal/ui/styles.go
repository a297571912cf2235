package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	FilePath = lipgloss.NewStyle().Foreground(ColorPrimary)
	LineNum  = lipgloss.NewStyle().Foreground(ColorMuted)

	// Search result styles
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// Section styles
	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	if width < 0 {
		width = 0
	}
	return Divider.Render(strings.Repeat("─", width))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float32) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatHit renders the header line of the n-th search hit.
func FormatHit(n int, path string, score float32) string {
	return fmt.Sprintf("%s %s %s",
		Highlight.Render(fmt.Sprintf("[%d]", n)),
		FilePath.Render(path),
		FormatScore(score),
	)
}

// FormatTime formats a timestamp relative to today.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}
	return t.Format("Jan 2, 2006 at 15:04")
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
