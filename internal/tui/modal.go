package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type modalStyles struct {
	container      lipgloss.Style
	title          lipgloss.Style
	message        lipgloss.Style
	button         lipgloss.Style
	buttonSelected lipgloss.Style
	backdrop       lipgloss.Color
}

func defaultModalStyles() modalStyles {
	return modalStyles{
		container: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(1, 3),
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")),
		message: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		button: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("238")).
			Padding(0, 3).
			MarginRight(2),
		buttonSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("99")).
			Padding(0, 3).
			MarginRight(2),
		backdrop: lipgloss.Color("236"),
	}
}

// RenderConfirmModal renders a centered yes/no dialog over a shaded screen.
func RenderConfirmModal(title, message string, yesSelected bool, width, height int) string {
	s := defaultModalStyles()

	parts := []string{s.title.Render(title)}
	if message != "" {
		parts = append(parts, "", s.message.Render(message))
	}

	yes, no := s.button, s.buttonSelected
	if yesSelected {
		yes, no = s.buttonSelected, s.button
	}
	parts = append(parts, "", lipgloss.JoinHorizontal(lipgloss.Center, yes.Render("Yes"), no.Render("No")))

	inner := strings.Join(parts, "\n")
	box := s.container.Width(max(30, lipgloss.Width(inner))).Align(lipgloss.Center).Render(inner)
	if width == 0 || height == 0 {
		return box
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(s.backdrop))
}

