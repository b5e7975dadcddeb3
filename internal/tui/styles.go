package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the watcher's pre-computed lipgloss styles.
type Styles struct {
	Title   lipgloss.Style
	Status  lipgloss.Style
	Paused  lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Action  lipgloss.Style
	Idle    lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
	Footer  lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	accent := lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A78BFA"}
	muted := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		Status:  lipgloss.NewStyle().Foreground(muted),
		Paused:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Section: lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1),
		Label:   lipgloss.NewStyle().Width(14),
		Action: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("42")).
			Padding(0, 1).
			MarginRight(1),
		Idle:   lipgloss.NewStyle().Italic(true).Foreground(muted),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Panel:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
		Footer: lipgloss.NewStyle().MarginTop(1),
	}
}
