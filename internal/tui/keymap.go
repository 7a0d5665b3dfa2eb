package tui

// Key bindings handled in handleKey. Digits 1 to 9 jump to a block.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeyDiscard   = "D"
	KeySpace     = " "
	KeyRight     = "right"
	KeyLeft      = "left"
	KeyL         = "l"
	KeyH         = "h"
	KeyPause     = "p"
)
