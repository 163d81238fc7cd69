package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
	"github.com/rickchristie/govner/mayatdd/internal/util"
)

// TreeViewRequest is something the tree view needs the App to handle.
type TreeViewRequest interface {
	isTreeViewRequest()
}

// SelectNodeRequest opens the detail screen for a node.
type SelectNodeRequest struct {
	Node tree.NodeID
}

// RerunAllRequest rediscovers and runs everything.
type RerunAllRequest struct{}

// RerunFailedRequest reruns the tests that failed or errored.
type RerunFailedRequest struct{}

// RerunSelectedRequest reruns every test under the selected node.
type RerunSelectedRequest struct {
	Node tree.NodeID
}

// QuitRequest asks to leave the application.
type QuitRequest struct{}

// ShowHelpRequest opens the key reference.
type ShowHelpRequest struct{}

func (SelectNodeRequest) isTreeViewRequest()    {}
func (RerunAllRequest) isTreeViewRequest()      {}
func (RerunFailedRequest) isTreeViewRequest()   {}
func (RerunSelectedRequest) isTreeViewRequest() {}
func (QuitRequest) isTreeViewRequest()          {}
func (ShowHelpRequest) isTreeViewRequest()      {}

// FilterMode selects which rows are shown.
type FilterMode int

const (
	FilterAll    FilterMode = iota
	FilterFailed            // Failed and errored nodes, and the running test
)

func (f FilterMode) String() string {
	if f == FilterFailed {
		return "Failed"
	}
	return "All"
}

// headerLines is the header, help bar and blank line above the rows.
const headerLines = 3

// TreeView renders a tree.Model as an expandable list. It never mutates the
// model; expansion is keyed by node path so it survives rebuilds.
type TreeView struct {
	model     *tree.Model
	expanded  map[string]bool
	nodes     []tree.NodeID // Visible rows, recomputed after every change
	cursor    int
	scrollTop int
	filter    FilterMode
	width     int
	height    int
	styles    treeStyles

	running   bool
	current   suite.Identity // Test being executed
	elapsed   time.Duration
	animFrame int
}

type treeStyles struct {
	header      lipgloss.Style
	helpBar     lipgloss.Style
	selectedRow lipgloss.Style
	container   lipgloss.Style
	dim         lipgloss.Style
	success     lipgloss.Style
	fail        lipgloss.Style
	errored     lipgloss.Style
	skipped     lipgloss.Style

	// Pre-rendered progress bar segments, index is the width (0-20)
	barSuccess   [21]string
	barFail      [21]string
	barError     [21]string
	barRemaining [21]string
}

const barWidth = 20

func defaultTreeStyles() treeStyles {
	success := lipgloss.NewStyle().Foreground(ColorSuccess)
	fail := lipgloss.NewStyle().Foreground(ColorFail)
	errored := lipgloss.NewStyle().Foreground(ColorError)
	dim := lipgloss.NewStyle().Foreground(ColorNotRun)

	s := treeStyles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		helpBar: dim,
		selectedRow: lipgloss.NewStyle().
			Background(lipgloss.Color("24")).
			Foreground(lipgloss.Color("231")).
			Bold(true),
		container: lipgloss.NewStyle().Bold(true),
		dim:       dim,
		success:   success,
		fail:      fail,
		errored:   errored,
		skipped:   lipgloss.NewStyle().Foreground(ColorSkipped),
	}
	for i := 0; i <= barWidth; i++ {
		s.barSuccess[i] = success.Render(strings.Repeat("━", i))
		s.barFail[i] = fail.Render(strings.Repeat("━", i))
		s.barError[i] = errored.Render(strings.Repeat("━", i))
		s.barRemaining[i] = dim.Render(strings.Repeat("─", i))
	}
	return s
}

// NewTreeView creates an empty tree view.
func NewTreeView() TreeView {
	return TreeView{
		model:    tree.Build(nil),
		expanded: make(map[string]bool),
		styles:   defaultTreeStyles(),
	}
}

// SetModel shows m. Top-level containers start expanded.
func (v TreeView) SetModel(m *tree.Model) TreeView {
	v.model = m
	for _, c := range m.Children(m.Root()) {
		if _, seen := v.expanded[v.pathKey(c)]; !seen {
			v.expanded[v.pathKey(c)] = true
		}
	}
	return v.Refresh()
}

// Refresh recomputes the visible rows after the model changed.
func (v TreeView) Refresh() TreeView {
	v.nodes = v.computeVisibleNodes()
	if v.cursor >= len(v.nodes) {
		v.cursor = max(0, len(v.nodes)-1)
	}
	v.scrollTop = v.computeScrollTop()
	return v
}

// SetRunning marks whether a cycle is in progress.
func (v TreeView) SetRunning(running bool) TreeView {
	v.running = running
	if !running {
		v.current = ""
	}
	return v
}

// SetCurrent marks the test being executed.
func (v TreeView) SetCurrent(id suite.Identity) TreeView {
	v.current = id
	return v
}

// SetElapsed updates the header clock.
func (v TreeView) SetElapsed(d time.Duration) TreeView {
	v.elapsed = d
	return v
}

// Tick advances the spinner.
func (v TreeView) Tick() TreeView {
	v.animFrame++
	return v
}

// Selected returns the node under the cursor, or tree.NoNode.
func (v TreeView) Selected() tree.NodeID {
	if v.cursor < len(v.nodes) {
		return v.nodes[v.cursor]
	}
	return tree.NoNode
}

// Rows returns the visible nodes in display order.
func (v TreeView) Rows() []tree.NodeID {
	return v.nodes
}

// pathKey identifies a node by the names on its path, stable across rebuilds.
func (v TreeView) pathKey(id tree.NodeID) string {
	var parts []string
	for n := id; n != tree.NoNode && n != v.model.Root(); n = v.model.Parent(n) {
		parts = append(parts, v.model.Name(n))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\x00")
}

func (v TreeView) isExpanded(id tree.NodeID) bool {
	return v.expanded[v.pathKey(id)]
}

func (v TreeView) setExpanded(id tree.NodeID, expanded bool) {
	v.expanded[v.pathKey(id)] = expanded
}

type treeKeyMap struct {
	Up           key.Binding
	Down         key.Binding
	Left         key.Binding
	Right        key.Binding
	Enter        key.Binding
	Filter       key.Binding
	Rerun        key.Binding
	RerunFailed  key.Binding
	RerunNode    key.Binding
	Quit         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	ToggleExpand key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	Help         key.Binding
}

var treeKeys = treeKeyMap{
	Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:         key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse")),
	Right:        key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "expand")),
	Enter:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Filter:       key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "filter")),
	Rerun:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rerun all")),
	RerunFailed:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "rerun failed")),
	RerunNode:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "rerun selected")),
	Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Top:          key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:       key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	ToggleExpand: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "expand/collapse all")),
	PageUp:       key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
	PageDown:     key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
	Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// Update handles window and key messages. The request is non-nil when the
// App has to act.
func (v TreeView) Update(msg tea.Msg) (TreeView, TreeViewRequest) {
	var request TreeViewRequest

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.scrollTop = v.computeScrollTop()

	case tea.KeyMsg:
		selected := v.Selected()

		switch {
		case key.Matches(msg, treeKeys.Help):
			request = ShowHelpRequest{}

		case key.Matches(msg, treeKeys.Up):
			if v.cursor > 0 {
				v.cursor--
			}

		case key.Matches(msg, treeKeys.Down):
			if v.cursor < len(v.nodes)-1 {
				v.cursor++
			}

		case key.Matches(msg, treeKeys.Left):
			if selected != tree.NoNode {
				if v.model.ChildCount(selected) > 0 && v.isExpanded(selected) {
					v.setExpanded(selected, false)
				} else if p := v.model.Parent(selected); p != v.model.Root() {
					v = v.selectNode(p)
				}
			}

		case key.Matches(msg, treeKeys.Right):
			if selected != tree.NoNode && v.model.ChildCount(selected) > 0 {
				v.setExpanded(selected, true)
			}

		case key.Matches(msg, treeKeys.Enter):
			if selected != tree.NoNode {
				request = SelectNodeRequest{Node: selected}
			}

		case key.Matches(msg, treeKeys.Filter):
			v.filter = (v.filter + 1) % 2
			v.cursor = 0
			v.scrollTop = 0

		case key.Matches(msg, treeKeys.Rerun):
			request = RerunAllRequest{}

		case key.Matches(msg, treeKeys.RerunFailed):
			request = RerunFailedRequest{}

		case key.Matches(msg, treeKeys.RerunNode):
			if selected != tree.NoNode {
				request = RerunSelectedRequest{Node: selected}
			}

		case key.Matches(msg, treeKeys.Quit):
			request = QuitRequest{}

		case key.Matches(msg, treeKeys.Top):
			v.cursor = 0

		case key.Matches(msg, treeKeys.Bottom):
			v.cursor = max(0, len(v.nodes)-1)

		case key.Matches(msg, treeKeys.PageUp):
			v.cursor = max(0, v.cursor-v.visibleRows())

		case key.Matches(msg, treeKeys.PageDown):
			v.cursor = min(max(0, len(v.nodes)-1), v.cursor+v.visibleRows())

		case key.Matches(msg, treeKeys.ToggleExpand):
			expand := !v.allExpanded()
			v.walkContainers(v.model.Root(), func(id tree.NodeID) {
				v.setExpanded(id, expand)
			})
		}

		v = v.Refresh()
	}

	return v, request
}

func (v TreeView) allExpanded() bool {
	all := true
	v.walkContainers(v.model.Root(), func(id tree.NodeID) {
		if !v.isExpanded(id) {
			all = false
		}
	})
	return all
}

func (v TreeView) walkContainers(id tree.NodeID, fn func(tree.NodeID)) {
	for _, c := range v.model.Children(id) {
		if v.model.ChildCount(c) > 0 {
			fn(c)
			v.walkContainers(c, fn)
		}
	}
}

func (v TreeView) selectNode(target tree.NodeID) TreeView {
	for i, n := range v.nodes {
		if n == target {
			v.cursor = i
			return v
		}
	}
	return v
}

func (v TreeView) computeVisibleNodes() []tree.NodeID {
	var out []tree.NodeID
	var walk func(id tree.NodeID)
	walk = func(id tree.NodeID) {
		for _, c := range v.model.Children(id) {
			if v.filter == FilterFailed && !v.focusRelevant(c) {
				continue
			}
			out = append(out, c)
			if v.model.ChildCount(c) > 0 && v.isExpanded(c) {
				walk(c)
			}
		}
	}
	walk(v.model.Root())
	return out
}

func (v TreeView) focusRelevant(id tree.NodeID) bool {
	if v.model.Status(id).Failed() {
		return true
	}
	if v.current == "" {
		return false
	}
	if cur, ok := v.model.Lookup(v.current); ok {
		for n := cur; n != tree.NoNode; n = v.model.Parent(n) {
			if n == id {
				return true
			}
		}
	}
	return false
}

func (v TreeView) visibleRows() int {
	rows := v.height - headerLines
	if rows < 1 {
		rows = 10
	}
	return rows
}

func (v TreeView) computeScrollTop() int {
	rows := v.visibleRows()
	top := v.scrollTop
	if v.cursor < top {
		top = v.cursor
	}
	if v.cursor >= top+rows {
		top = v.cursor - rows + 1
	}
	return max(0, min(top, len(v.nodes)-rows))
}

// View renders the header, help bar and visible rows.
func (v TreeView) View() string {
	var sb strings.Builder
	sb.WriteString(v.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(v.renderHelpBar())
	sb.WriteString("\n\n")
	sb.WriteString(v.renderTree())
	return sb.String()
}

func (v TreeView) renderHeader() string {
	c := v.model.Counts(v.model.Root())

	gear := IconGearOK
	switch {
	case v.running:
		gear = IconGearBusy
	case c.Fail+c.Error > 0:
		gear = IconGearFail
	}

	counts := v.styles.success.Bold(true).Render(fmt.Sprintf("%s %d", IconCharSuccess, c.Success)) + "  " +
		v.styles.fail.Bold(true).Render(fmt.Sprintf("%s %d", IconCharFail, c.Fail)) + "  " +
		v.styles.errored.Bold(true).Render(fmt.Sprintf("%s %d", IconCharError, c.Error)) + "  " +
		v.styles.skipped.Bold(true).Render(fmt.Sprintf("%s %d", IconCharSkipped, c.Skipped))

	var state string
	if v.running {
		state = v.styles.dim.Render(fmt.Sprintf("%d/%d (%s)", c.Done(), c.Total, util.FormatDuration(v.elapsed)))
	} else {
		state = v.styles.success.Render(fmt.Sprintf("Done (%s)", util.FormatDuration(v.elapsed)))
	}
	return gear + " " + v.styles.header.Render("MAYATDD") + "  " + counts + "  " + state
}

func (v TreeView) renderHelpBar() string {
	help := fmt.Sprintf("[Space %s]  [↵ Details]  [r Rerun]  [R Failed]  [s Selected]  [? Help]  [q Quit]", v.filter)
	scroll := ""
	if len(v.nodes) > 0 {
		scroll = fmt.Sprintf("─ %d/%d", v.cursor+1, len(v.nodes))
	}
	padding := max(1, v.width-lipgloss.Width(help)-lipgloss.Width(scroll))
	return v.styles.helpBar.Render(help) + strings.Repeat(" ", padding) + v.styles.helpBar.Render(scroll)
}

func (v TreeView) renderTree() string {
	if len(v.nodes) == 0 {
		if v.filter == FilterFailed {
			return v.styles.dim.Render("No failures")
		}
		return v.styles.dim.Render("No tests to display")
	}
	end := min(v.scrollTop+v.visibleRows(), len(v.nodes))
	lines := make([]string, 0, end-v.scrollTop)
	for i := v.scrollTop; i < end; i++ {
		lines = append(lines, v.renderNode(v.nodes[i], i == v.cursor))
	}
	return strings.Join(lines, "\n")
}

func (v TreeView) renderNode(id tree.NodeID, selected bool) string {
	m := v.model
	isContainer := m.ChildCount(id) > 0
	indent := strings.Repeat("  ", m.Depth(id)-1)

	chevron := " "
	if isContainer {
		chevron = "▶"
		if v.isExpanded(id) {
			chevron = "▼"
		}
	}

	runningHere := v.running && v.current != "" && m.Identity(id) == v.current
	var icon string
	switch {
	case runningHere && selected:
		icon = SpinnerIconRaw(v.animFrame)
	case runningHere:
		icon = SpinnerIcon(v.animFrame)
	case selected:
		icon = StatusIconRaw(m.Status(id))
	default:
		icon = StatusIcon(m.Status(id))
	}

	suffix, suffixWidth := v.renderSuffix(id, isContainer)

	name := m.Name(id)
	fixed := runewidth.StringWidth(indent) + 5 + suffixWidth // space, chevron, space, icon
	if v.width > 0 {
		if avail := v.width - fixed; runewidth.StringWidth(name) > avail {
			name = runewidth.Truncate(name, max(avail, 4), "…")
		}
	}
	if isContainer && !selected {
		name = v.styles.container.Render(name)
	}

	core := " " + chevron + " " + icon + name
	if selected {
		return indent + v.styles.selectedRow.Render(core) + suffix
	}
	return indent + core + suffix
}

// renderSuffix returns the progress and timing after the name, and its width.
func (v TreeView) renderSuffix(id tree.NodeID, isContainer bool) (string, int) {
	var plain, styled string
	if isContainer {
		c := v.model.Counts(id)
		text := " " + strconv.Itoa(c.Done()) + "/" + strconv.Itoa(c.Total)
		plain += text + " " + strings.Repeat("─", barWidth)
		styled += v.styles.dim.Render(text) + " " + v.renderProgressBar(c)
	}
	if d := v.model.Elapsed(id); d > 0 {
		text := " " + util.FormatDuration(d)
		plain += text
		styled += v.styles.dim.Render(text)
	}
	return styled, runewidth.StringWidth(plain)
}

func (v TreeView) renderProgressBar(c tree.Counts) string {
	if c.Total == 0 {
		return v.styles.barRemaining[barWidth]
	}
	success := (c.Success + c.Skipped) * barWidth / c.Total
	fail := c.Fail * barWidth / c.Total
	errored := c.Error * barWidth / c.Total
	remaining := barWidth - success - fail - errored
	return v.styles.barSuccess[success] +
		v.styles.barFail[fail] +
		v.styles.barError[errored] +
		v.styles.barRemaining[remaining]
}
