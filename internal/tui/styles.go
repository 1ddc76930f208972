package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#2196F3")
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#7a869a")
	colorError   = lipgloss.Color("#e53935")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	itemStyle   = lipgloss.NewStyle().PaddingLeft(2)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	barStyle    = lipgloss.NewStyle().Foreground(colorAccent)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)
