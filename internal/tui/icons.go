package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// Icon characters
const (
	IconCharSuccess = "✓"
	IconCharFail    = "✗"
	IconCharError   = "!"
	IconCharSkipped = "⊘"
	IconCharNotRun  = "○"
	IconCharGear    = "⚙"
)

// Spinner frames, Braille dot animation
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorFail    = lipgloss.Color("196") // Red
	ColorError   = lipgloss.Color("208") // Orange
	ColorSkipped = lipgloss.Color("245") // Gray
	ColorNotRun  = lipgloss.Color("241") // Dim gray
	ColorRunning = lipgloss.Color("45")  // Light blue
)

// Pre-rendered icons with a trailing space for tree rows. Computed once so
// View doesn't call Style.Render per row.
var (
	icons    map[suite.Status]string
	iconsRaw map[suite.Status]string
	spinner  []string

	IconGearOK   string
	IconGearFail string
	IconGearBusy string
)

func init() {
	colors := map[suite.Status]lipgloss.Color{
		suite.StatusSuccess: ColorSuccess,
		suite.StatusFail:    ColorFail,
		suite.StatusError:   ColorError,
		suite.StatusSkipped: ColorSkipped,
		suite.StatusNotRun:  ColorNotRun,
	}
	icons = make(map[suite.Status]string, len(colors))
	iconsRaw = make(map[suite.Status]string, len(colors))
	for status, color := range colors {
		char := iconChar(status)
		icons[status] = lipgloss.NewStyle().Foreground(color).Render(char) + " "
		iconsRaw[status] = char + " "
	}

	running := lipgloss.NewStyle().Foreground(ColorRunning)
	for _, f := range SpinnerFrames {
		spinner = append(spinner, running.Render(f)+" ")
	}

	IconGearOK = lipgloss.NewStyle().Foreground(ColorSuccess).Render(IconCharGear)
	IconGearFail = lipgloss.NewStyle().Foreground(ColorFail).Render(IconCharGear)
	IconGearBusy = running.Render(IconCharGear)
}

func iconChar(s suite.Status) string {
	switch s {
	case suite.StatusSuccess:
		return IconCharSuccess
	case suite.StatusFail:
		return IconCharFail
	case suite.StatusError:
		return IconCharError
	case suite.StatusSkipped:
		return IconCharSkipped
	default:
		return IconCharNotRun
	}
}

// StatusIcon returns the colored icon for s.
func StatusIcon(s suite.Status) string {
	if icon, ok := icons[s]; ok {
		return icon
	}
	return "? "
}

// StatusIconRaw returns the uncolored icon, for inverted (selected) rows.
func StatusIconRaw(s suite.Status) string {
	if icon, ok := iconsRaw[s]; ok {
		return icon
	}
	return "? "
}

// SpinnerIcon returns the spinner frame for the animation tick.
func SpinnerIcon(frame int) string {
	return spinner[frame%len(spinner)]
}

// SpinnerIconRaw returns the uncolored spinner frame.
func SpinnerIconRaw(frame int) string {
	return SpinnerFrames[frame%len(SpinnerFrames)] + " "
}
