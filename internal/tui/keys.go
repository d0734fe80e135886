package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(stopped bool) string {
	help := "Tab: cycle focus | 1/2: jump to pane | j/k: select task | q: quit"
	if stopped {
		help += " | host stopped"
	}
	return StyleHelp.Render(help)
}
