package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the normal-mode keyboard bindings. While the input box is
// focused, keys go to it except Esc, Enter and Ctrl+C.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Compact    key.Binding
	Escape     key.Binding

	// Input
	Insert  key.Binding
	Command key.Binding
	Submit  key.Binding

	// Windows
	NextWindow  key.Binding
	PrevWindow  key.Binding
	FirstWindow key.Binding
	LastWindow  key.Binding
	NextUnread  key.Binding
	ToggleMute  key.Binding

	// Scrolling
	PageUp       key.Binding
	PageDown     key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding

	// Sync
	Retry  key.Binding
	Resync key.Binding

	// Panes
	ViewFailures   key.Binding
	DismissFailure key.Binding
	ViewLogs       key.Binding
	CycleLogLevel  key.Binding
}

// defaultKeyMap returns the default key bindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Compact: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "Toggle compact mode"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc", "q"),
			key.WithHelp("esc", "Back to messages"),
		),

		Insert: key.NewBinding(
			key.WithKeys("i", "enter"),
			key.WithHelp("i", "Type a message"),
		),
		Command: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Type a command"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Send"),
		),

		NextWindow: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Next window"),
		),
		PrevWindow: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Previous window"),
		),
		FirstWindow: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "First window"),
		),
		LastWindow: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Last window"),
		),
		NextUnread: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Next unread window"),
		),
		ToggleMute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Mute window"),
		),

		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "Page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdown", "Page down"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "Half page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "Half page down"),
		),

		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Retry connection"),
		),
		Resync: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Reload snapshot"),
		),

		ViewFailures: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Failed actions"),
		),
		DismissFailure: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Dismiss newest failure"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Client log"),
		),
		CycleLogLevel: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Cycle log level"),
		),
	}
}

// ShortHelp returns key bindings for the footer hint.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Insert, k.NextWindow, k.Help, k.Quit}
}

// FullHelp returns key bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Insert, k.Command, k.Escape},
		{k.NextWindow, k.PrevWindow, k.FirstWindow, k.LastWindow, k.NextUnread, k.ToggleMute},
		{k.PageUp, k.PageDown, k.HalfPageUp, k.HalfPageDown},
		{k.Retry, k.Resync},
		{k.ViewFailures, k.DismissFailure, k.ViewLogs, k.CycleLogLevel},
		{k.CycleTheme, k.Compact, k.Help, k.Quit},
	}
}
