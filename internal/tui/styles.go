package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#BD93F9"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6272A4"}
	colorError   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF5555"}
	colorOK      = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#50FA7B"}

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	greetingStyle = lipgloss.NewStyle().Foreground(colorMuted)
	liveStyle     = lipgloss.NewStyle().Foreground(colorOK)
	offlineStyle  = lipgloss.NewStyle().Foreground(colorError)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorError).
			Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
			Background(colorPrimary).
			Padding(0, 2).
			MarginLeft(1)

	rowStyle      = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().PaddingLeft(1).Bold(true).Foreground(colorPrimary)
	editingStyle  = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	emptyStyle    = lipgloss.NewStyle().Foreground(colorMuted).Italic(true).PaddingLeft(2)
)
