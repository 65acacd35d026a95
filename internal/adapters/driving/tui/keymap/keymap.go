// Package keymap defines keybindings for the progress view.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the progress view keybindings.
type KeyMap struct {
	// Quit interrupts the run. In-flight batches still finish.
	Quit key.Binding

	// Details toggles the list of recent events.
	Details key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "interrupt"),
		),
		Details: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "details"),
		),
	}
}

// ShortHelp returns the bindings shown under the progress bar.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Details, k.Quit}
}
