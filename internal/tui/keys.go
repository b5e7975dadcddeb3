// Package tui is the terminal watcher: it steps a scenario run on a timer
// and renders what the organism is doing.
package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the watcher's keyboard shortcuts.
// It implements help.KeyMap.
type KeyMap struct {
	// Pause toggles automatic stepping
	Pause key.Binding

	// Step advances one tick while paused
	Step key.Binding

	// Faster halves the tick interval
	Faster key.Binding

	// Slower doubles the tick interval
	Slower key.Binding

	// Help toggles the full help view
	Help key.Binding

	// Quit exits the watcher
	Quit key.Binding
}

// DefaultKeyMap returns the default keyboard shortcuts.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space/p", "pause/resume"),
		),
		Step: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n/→", "step"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "slower"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Step, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Step},
		{k.Faster, k.Slower},
		{k.Help, k.Quit},
	}
}
