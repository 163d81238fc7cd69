package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// CloseHelpRequest returns to the previous screen.
type CloseHelpRequest struct{}

// HelpView lists the key bindings and status icons.
type HelpView struct {
	viewport viewport.Model
	ready    bool
	styles   helpStyles
}

type helpStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	key     lipgloss.Style
	desc    lipgloss.Style
	hint    lipgloss.Style
}

// NewHelpView creates the help screen.
func NewHelpView() HelpView {
	return HelpView{
		styles: helpStyles{
			title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
			section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("248")),
			key:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
			desc:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			hint:    lipgloss.NewStyle().Foreground(ColorNotRun),
		},
	}
}

var helpClose = key.NewBinding(key.WithKeys("q", "esc", "?"))

// Update handles window and key messages. The request is non-nil when the
// help screen should close.
func (v HelpView) Update(msg tea.Msg) (HelpView, tea.Cmd, *CloseHelpRequest) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !v.ready {
			v.viewport = viewport.New(msg.Width, msg.Height-1)
			v.ready = true
		} else {
			v.viewport.Width = msg.Width
			v.viewport.Height = msg.Height - 1
		}
		v.viewport.SetContent(v.renderContent())
	case tea.KeyMsg:
		if key.Matches(msg, helpClose) {
			return v, nil, &CloseHelpRequest{}
		}
		v.viewport, cmd = v.viewport.Update(msg)
	}
	return v, cmd, nil
}

// View renders the help screen.
func (v HelpView) View() string {
	header := v.styles.title.Render("mayatdd help") + "  " + v.styles.hint.Render("Press Esc to go back") + "\n"
	if v.ready {
		return header + v.viewport.View()
	}
	return header + v.renderContent()
}

func (v HelpView) renderContent() string {
	var sb strings.Builder
	section := func(title string, bindings ...key.Binding) {
		sb.WriteString("\n" + v.styles.section.Render(title) + "\n")
		for _, b := range bindings {
			h := b.Help()
			sb.WriteString(v.renderKey(h.Key, h.Desc))
		}
	}

	section("Navigation", treeKeys.Up, treeKeys.Down, treeKeys.PageUp, treeKeys.PageDown, treeKeys.Top, treeKeys.Bottom)
	section("Tree", treeKeys.Left, treeKeys.Right, treeKeys.ToggleExpand, treeKeys.Filter)
	section("Actions", treeKeys.Enter, treeKeys.Rerun, treeKeys.RerunFailed, treeKeys.RerunNode)
	section("Details", detailKeys.Back, detailKeys.Rerun)
	section("Other", treeKeys.Help, treeKeys.Quit)

	sb.WriteString("\n" + v.styles.section.Render("Status Icons") + "\n")
	sb.WriteString(v.renderKey(IconCharSuccess, "Passed"))
	sb.WriteString(v.renderKey(IconCharFail, "Failed"))
	sb.WriteString(v.renderKey(IconCharError, "Error, including modules that failed to import"))
	sb.WriteString(v.renderKey(IconCharSkipped, "Skipped"))
	sb.WriteString(v.renderKey(IconCharNotRun, "Not run"))
	return sb.String()
}

func (v HelpView) renderKey(k, desc string) string {
	return v.styles.key.Render(padRight(k, 12)) + v.styles.desc.Render(desc) + "\n"
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
