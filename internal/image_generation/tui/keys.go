package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	quit     key.Binding
	up       key.Binding
	down     key.Binding
	prevPage key.Binding
	nextPage key.Binding
	open     key.Binding
	back     key.Binding
	download key.Binding
	refresh  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		prevPage: key.NewBinding(
			key.WithKeys("left", "p"),
			key.WithHelp("←/p", "previous page"),
		),
		nextPage: key.NewBinding(
			key.WithKeys("right", "n"),
			key.WithHelp("→/n", "next page"),
		),
		open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "download"),
		),
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// listKeys and detailKeys feed the help footer of each screen
type listKeys struct{ keyMap }

func (k listKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.up, k.down, k.prevPage, k.nextPage, k.open, k.refresh, k.quit}
}

func (k listKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type detailKeys struct{ keyMap }

func (k detailKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.download, k.back, k.quit}
}

func (k detailKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }
