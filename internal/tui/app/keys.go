package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	VolumeDown key.Binding
	VolumeUp   key.Binding
	Mute       key.Binding
	Reload     key.Binding
	Help       key.Binding
	Log        key.Binding
	Escape     key.Binding
	Quit       key.Binding
	StopDaemon key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "previous session"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next session"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "volume -5%"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "volume +5%"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "toggle mute"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload sessions"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Log: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		StopDaemon: key.NewBinding(
			key.WithKeys("Q"),
			key.WithHelp("Q", "stop daemon and quit"),
		),
	}
}

// bindings lists the keys in help order.
func (k KeyMap) bindings() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.VolumeUp, k.VolumeDown, k.Mute, k.Reload, k.Log, k.Help, k.Escape, k.Quit, k.StopDaemon}
}
