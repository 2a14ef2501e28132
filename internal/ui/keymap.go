// internal/ui/keymap.go
package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the clicker screen.
type KeyMap struct {
	Click      key.Binding
	Submit     key.Binding
	Refresh    key.Binding
	Export     key.Binding
	Checkpoint key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Click: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "click"),
		),
		Submit: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "submit batch"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Export: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "export history"),
		),
		Checkpoint: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "verify checkpoint"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// HelpLine renders the binding hints in display order.
func (k KeyMap) HelpLine() []key.Binding {
	return []key.Binding{k.Click, k.Submit, k.Refresh, k.Export, k.Checkpoint, k.Quit}
}
