package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rickchristie/govner/mayatdd/internal/report"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
	"github.com/rickchristie/govner/mayatdd/internal/util"
)

// DetailViewRequest is something the detail view needs the App to handle.
type DetailViewRequest interface {
	isDetailViewRequest()
}

// BackRequest returns to the tree.
type BackRequest struct{}

// RerunNodeRequest reruns the node being shown.
type RerunNodeRequest struct {
	Node tree.NodeID
}

func (BackRequest) isDetailViewRequest()      {}
func (RerunNodeRequest) isDetailViewRequest() {}

// DetailView shows the status and failure detail of one node.
type DetailView struct {
	model    *tree.Model
	node     tree.NodeID
	viewport viewport.Model
	ready    bool
	width    int
	height   int
	styles   detailStyles
}

type detailStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	hint  lipgloss.Style
}

// NewDetailView creates an empty detail view.
func NewDetailView() DetailView {
	return DetailView{
		node: tree.NoNode,
		styles: detailStyles{
			title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
			label: lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
			hint:  lipgloss.NewStyle().Foreground(ColorNotRun),
		},
	}
}

// SetNode shows node of m.
func (v DetailView) SetNode(m *tree.Model, node tree.NodeID) DetailView {
	v.model = m
	v.node = node
	if v.ready {
		v.viewport.SetContent(v.renderContent())
		v.viewport.GotoTop()
	}
	return v
}

// Node returns the node being shown.
func (v DetailView) Node() tree.NodeID {
	return v.node
}

// Refresh re-renders after the node's status changed, keeping the scroll
// position.
func (v DetailView) Refresh() DetailView {
	if v.ready {
		v.viewport.SetContent(v.renderContent())
	}
	return v
}

type detailKeyMap struct {
	Back  key.Binding
	Rerun key.Binding
}

var detailKeys = detailKeyMap{
	Back:  key.NewBinding(key.WithKeys("esc", "q", "backspace"), key.WithHelp("esc", "back")),
	Rerun: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rerun this")),
}

// Update handles window and key messages.
func (v DetailView) Update(msg tea.Msg) (DetailView, tea.Cmd, DetailViewRequest) {
	var cmd tea.Cmd
	var request DetailViewRequest

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		if !v.ready {
			v.viewport = viewport.New(msg.Width, msg.Height-1)
			v.ready = true
		} else {
			v.viewport.Width = msg.Width
			v.viewport.Height = msg.Height - 1
		}
		v.viewport.SetContent(v.renderContent())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, detailKeys.Back):
			request = BackRequest{}
		case key.Matches(msg, detailKeys.Rerun):
			request = RerunNodeRequest{Node: v.node}
		default:
			v.viewport, cmd = v.viewport.Update(msg)
		}
	}
	return v, cmd, request
}

func (v DetailView) renderContent() string {
	if v.model == nil || v.node == tree.NoNode {
		return ""
	}
	m := v.model
	var b strings.Builder

	b.WriteString(v.styles.title.Render(m.Name(v.node)) + "\n\n")
	if id := m.Identity(v.node); id != "" {
		b.WriteString(v.styles.label.Render("Identity  ") + string(id) + "\n")
	}
	status := m.Status(v.node)
	b.WriteString(v.styles.label.Render("Status    ") + StatusIcon(status) + report.StatusText(status) + "\n")
	if d := m.Elapsed(v.node); d > 0 {
		b.WriteString(v.styles.label.Render("Elapsed   ") + util.FormatDuration(d) + "\n")
	}
	if m.ChildCount(v.node) > 0 {
		c := m.Counts(v.node)
		fmt.Fprintf(&b, "%s%d tests, %d passed, %d failed, %d errors, %d skipped\n",
			v.styles.label.Render("Tests     "), c.Total, c.Success, c.Fail, c.Error, c.Skipped)
	}

	if tip := m.Tooltip(v.node); tip != "" {
		b.WriteString("\n" + tip + "\n")
	}

	// Containers list the first line of every failure below them
	if m.ChildCount(v.node) > 0 {
		for _, id := range m.Failed() {
			leaf, ok := m.Lookup(id)
			if !ok || !isAncestor(m, v.node, leaf) {
				continue
			}
			line := lastLine(m.Tooltip(leaf))
			fmt.Fprintf(&b, "\n%s%s\n    %s", StatusIcon(m.Status(leaf)), id, line)
		}
	}
	return b.String()
}

// lastLine returns the final non-empty line, where tracebacks put the
// exception.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func isAncestor(m *tree.Model, ancestor, id tree.NodeID) bool {
	for n := m.Parent(id); n != tree.NoNode; n = m.Parent(n) {
		if n == ancestor {
			return true
		}
	}
	return false
}

// View renders the detail and a key hint line.
func (v DetailView) View() string {
	if !v.ready {
		return v.renderContent()
	}
	return v.viewport.View() + "\n" + v.styles.hint.Render("[esc Back]  [r Rerun]  [↑↓ Scroll]")
}
