package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the application.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Left        key.Binding
	Right       key.Binding
	Top         key.Binding
	Bottom      key.Binding
	Jump        key.Binding
	SwitchScope key.Binding
	Search      key.Binding
	ClearSearch key.Binding
	Refresh     key.Binding
	AddFolder   key.Binding
	Upload      key.Binding
	Rename      key.Binding
	Delete      key.Binding
	Share       key.Binding
	OpenPreview key.Binding
	YankID      key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default vim-style key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "move down"),
		),
		Left: key.NewBinding(
			key.WithKeys("h", "left", "backspace"),
			key.WithHelp("h/left", "go back"),
		),
		Right: key.NewBinding(
			key.WithKeys("l", "right", "enter"),
			key.WithHelp("l/enter", "open folder"),
		),
		Top: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("gg", "go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "go to bottom"),
		),
		Jump: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("0-9", "jump to crumb"),
		),
		SwitchScope: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "mine/shared"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		ClearSearch: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear search"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		AddFolder: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "new folder"),
		),
		Upload: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "upload file"),
		),
		Rename: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "rename"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Share: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "share"),
		),
		OpenPreview: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open preview"),
		),
		YankID: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "yank id"),
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

// helpGroups returns the bindings shown in the help overlay, grouped.
func (k KeyMap) helpGroups() []helpGroup {
	return []helpGroup{
		{Title: "nav", Bindings: []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Top, k.Bottom, k.Jump, k.SwitchScope}},
		{Title: "find", Bindings: []key.Binding{k.Search, k.ClearSearch, k.Refresh}},
		{Title: "edit", Bindings: []key.Binding{k.AddFolder, k.Upload, k.Rename, k.Delete, k.Share}},
		{Title: "act", Bindings: []key.Binding{k.OpenPreview, k.YankID, k.Help, k.Quit}},
	}
}

type helpGroup struct {
	Title    string
	Bindings []key.Binding
}
