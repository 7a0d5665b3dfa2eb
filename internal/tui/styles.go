package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the monitor.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	PausedDotStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	CurrentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	ConfirmedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	UpcomingStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ListeningBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	ManualBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	LevelGreenStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	LevelYellowStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	LevelGrayStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)
