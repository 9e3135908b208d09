// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#CCCCCC"}
	TextMutedColor   = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	StatusStaleColor   = lipgloss.AdaptiveColor{Light: "#E67E22", Dark: "#FAB387"}

	AccentColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	StageColor  = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}

	// Selection indicator style (used for ">" prefix in lists)
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(
		lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"})

	// Tab bar
	TabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(TextMutedColor)
	ActiveTabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(AccentColor).
			Underline(true)

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	MutedStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(StatusSuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(StatusWarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(StatusErrorColor)
	StaleStyle   = lipgloss.NewStyle().Foreground(StatusStaleColor)
	StageStyle   = lipgloss.NewStyle().Bold(true).Foreground(StageColor)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor).
			Padding(0, 1)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(TextMutedColor).
			Padding(0, 1)
)
