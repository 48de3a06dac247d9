package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	reload      key.Binding
	toggleHelp  key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	nextScreen  key.Binding
	prevScreen  key.Binding
	open        key.Binding
	back        key.Binding
	toggleTimer key.Binding
	newTask     key.Binding
	filterTags  key.Binding
	deleteTask  key.Binding

	editStart      key.Binding
	editStop       key.Binding
	addInterval    key.Binding
	deleteInterval key.Binding
	save           key.Binding

	prevWindow key.Binding
	nextWindow key.Binding
	copy       key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		nextScreen:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next screen")),
		prevScreen:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous screen")),
		open:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "intervals")),
		back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		toggleTimer: key.NewBinding(key.WithKeys("space", " ", "s"), key.WithHelp("space/s", "start/stop")),
		newTask:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		filterTags:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter tags")),
		deleteTask:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete task")),

		editStart:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit start")),
		editStop:       key.NewBinding(key.WithKeys("E", "shift+e"), key.WithHelp("E", "edit stop")),
		addInterval:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add interval")),
		deleteInterval: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete/restore interval")),
		save:           key.NewBinding(key.WithKeys("w", "ctrl+s"), key.WithHelp("w", "save")),

		prevWindow: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous window")),
		nextWindow: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next window")),
		copy:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy summary")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggleTimer, k.open, k.newTask, k.filterTags, k.nextScreen, k.toggleHelp, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.nextScreen, k.prevScreen, k.open, k.back, k.reload, k.toggleHelp, k.quit},
		{k.toggleTimer, k.newTask, k.filterTags, k.deleteTask},
		{k.editStart, k.editStop, k.addInterval, k.deleteInterval, k.save},
		{k.prevWindow, k.nextWindow, k.copy},
	}
}
