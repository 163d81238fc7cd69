// Package tui is the interactive test tree. A cycle runs on one worker
// goroutine and streams its results as messages; the tree model is only ever
// mutated inside App.Update.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/runner"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
	"github.com/rickchristie/govner/mayatdd/internal/util"
)

// Cycler discovers and runs tests. *runner.Runner implements it.
type Cycler interface {
	Discover(ctx context.Context, paths []string, specific suite.Identity) (*suite.Suite, error)
	Run(ctx context.Context, s *suite.Suite, sink runner.Sink) (runner.Summary, error)
}

// Options are the search paths and optional specific test of every cycle.
type Options struct {
	Paths    []string
	Specific suite.Identity
}

type screen int

const (
	screenTree screen = iota
	screenDetail
	screenHelp
)

// --- Messages streamed from the worker. gen tells cycles apart. ---

type discoveredMsg struct {
	gen   int
	suite *suite.Suite
}

type testStartedMsg struct {
	gen int
	id  suite.Identity
}

type resultMsg struct {
	gen     int
	id      suite.Identity
	status  suite.Status
	detail  string
	elapsed time.Duration
}

type cycleDoneMsg struct {
	gen     int
	summary runner.Summary
	err     error
}

type tickMsg time.Time

// confirmModal is an open yes/no dialog. No is the default choice.
type confirmModal struct {
	open  bool
	yes   bool
	title string
	onYes func(a App) (App, tea.Cmd)
}

// App is the bubbletea model of the interactive runner.
type App struct {
	cycler Cycler
	opts   Options

	tree       *tree.Model
	treeView   TreeView
	detailView DetailView
	helpView   HelpView
	screen     screen
	prevScreen screen
	width      int
	height     int

	running   bool
	startTime time.Time
	gen       int
	events    <-chan tea.Msg
	cancel    context.CancelFunc
	rerun     map[suite.Identity]bool // Tests selected for the running cycle; nil means all
	previous  *tree.Model             // Results carried into a partial rerun

	summary runner.Summary
	lastErr string
	modal   confirmModal
}

// NewApp creates the application. The first cycle starts in Init.
func NewApp(c Cycler, opts Options) App {
	m := tree.Build(nil)
	return App{
		cycler:     c,
		opts:       opts,
		tree:       m,
		treeView:   NewTreeView().SetModel(m),
		detailView: NewDetailView(),
		helpView:   NewHelpView(),
	}
}

// Init implements tea.Model
func (a App) Init() tea.Cmd {
	return func() tea.Msg { return startMsg{} }
}

// startMsg starts the first cycle from inside Update, where App state can
// change.
type startMsg struct{}

// Model returns the tree being displayed.
func (a App) Model() *tree.Model {
	return a.tree
}

// Summary returns the summary of the last finished cycle.
func (a App) Summary() runner.Summary {
	return a.summary
}

// Running reports whether a cycle is in progress.
func (a App) Running() bool {
	return a.running
}

// startCycle launches a worker for one cycle. ids limits the run to those
// tests; nil runs everything discovered.
func (a App) startCycle(ids []suite.Identity) (App, tea.Cmd) {
	if a.running {
		log.Debug().Msg("cycle already running, ignoring rerun")
		return a, nil
	}

	a.gen++
	a.running = true
	a.startTime = time.Now()
	a.lastErr = ""
	a.previous = nil
	a.rerun = nil
	if ids != nil {
		a.rerun = make(map[suite.Identity]bool, len(ids))
		for _, id := range ids {
			a.rerun[id] = true
		}
		a.previous = a.tree
	}
	a.treeView = a.treeView.SetRunning(true).SetElapsed(0)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	events := make(chan tea.Msg, 64)
	a.events = events

	log.Info().Int("cycle", a.gen).Int("selected", len(ids)).Msg("starting cycle")
	w := worker{cycler: a.cycler, opts: a.opts, ids: ids, gen: a.gen, events: events}
	go w.run(ctx)

	return a, tea.Batch(waitForEvent(events), tickCmd())
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.String() == "ctrl+c" {
			return a.quit()
		}
		if a.modal.open {
			return a.updateModal(keyMsg)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.treeView, _ = a.treeView.Update(msg)
		a.detailView, _, _ = a.detailView.Update(msg)
		a.helpView, _, _ = a.helpView.Update(msg)
		return a, nil

	case startMsg:
		return a.startCycle(nil)

	case discoveredMsg:
		if msg.gen != a.gen {
			return a, nil
		}
		a.tree = tree.Build(msg.suite)
		a.carryForward()
		a.treeView = a.treeView.SetModel(a.tree)
		if a.screen == screenDetail {
			a.screen = screenTree
		}
		return a, waitForEvent(a.events)

	case testStartedMsg:
		if msg.gen != a.gen {
			return a, nil
		}
		a.treeView = a.treeView.SetCurrent(msg.id)
		return a, waitForEvent(a.events)

	case resultMsg:
		if msg.gen != a.gen {
			return a, nil
		}
		a.tree.ApplyOutcome(msg.id, msg.status, msg.detail, msg.elapsed)
		a.treeView = a.treeView.Refresh()
		if a.screen == screenDetail {
			a.detailView = a.detailView.Refresh()
		}
		return a, waitForEvent(a.events)

	case cycleDoneMsg:
		if msg.gen != a.gen {
			return a, nil
		}
		a.running = false
		a.cancel()
		a.summary = msg.summary
		a.previous = nil
		if msg.err != nil {
			a.lastErr = util.FirstLine(msg.err.Error())
			log.Error().Err(msg.err).Msg("cycle failed")
		} else {
			log.Info().Int("total", msg.summary.Total).Int("failed", msg.summary.Fail).Int("errors", msg.summary.Error).Msg("cycle finished")
		}
		a.treeView = a.treeView.SetRunning(false).SetElapsed(time.Since(a.startTime)).Refresh()
		return a, nil

	case tickMsg:
		if a.running {
			a.treeView = a.treeView.SetElapsed(time.Since(a.startTime)).Tick()
			cmds = append(cmds, tickCmd())
		}
		return a, tea.Batch(cmds...)
	}

	switch a.screen {
	case screenTree:
		var request TreeViewRequest
		a.treeView, request = a.treeView.Update(msg)
		switch req := request.(type) {
		case SelectNodeRequest:
			a.detailView = a.detailView.SetNode(a.tree, req.Node)
			a.screen = screenDetail
		case ShowHelpRequest:
			a.prevScreen = screenTree
			a.screen = screenHelp
		case RerunAllRequest:
			a.modal = confirmModal{open: true, title: "Rerun all tests?", onYes: func(a App) (App, tea.Cmd) {
				return a.startCycle(nil)
			}}
		case RerunFailedRequest:
			if failed := a.tree.Failed(); len(failed) > 0 {
				return a.startCycle(failed)
			}
		case RerunSelectedRequest:
			if ids := a.tree.IdentitiesUnder(req.Node); len(ids) > 0 {
				return a.startCycle(ids)
			}
		case QuitRequest:
			if !a.running {
				return a, tea.Quit
			}
			a.modal = confirmModal{open: true, title: "Stop running tests?", onYes: func(a App) (App, tea.Cmd) {
				m, cmd := a.quit()
				return m.(App), cmd
			}}
		}

	case screenDetail:
		var request DetailViewRequest
		var cmd tea.Cmd
		a.detailView, cmd, request = a.detailView.Update(msg)
		cmds = append(cmds, cmd)
		switch req := request.(type) {
		case BackRequest:
			a.screen = screenTree
		case RerunNodeRequest:
			if ids := a.tree.IdentitiesUnder(req.Node); len(ids) > 0 {
				a.screen = screenTree
				return a.startCycle(ids)
			}
		}

	case screenHelp:
		var request *CloseHelpRequest
		var cmd tea.Cmd
		a.helpView, cmd, request = a.helpView.Update(msg)
		cmds = append(cmds, cmd)
		if request != nil {
			a.screen = a.prevScreen
		}
	}

	return a, tea.Batch(cmds...)
}

func (a App) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		a.modal.yes = true
	case "right", "l":
		a.modal.yes = false
	case "y", "Y":
		return a.acceptModal()
	case "enter":
		if a.modal.yes {
			return a.acceptModal()
		}
		a.modal = confirmModal{}
	case "n", "N", "esc", "q":
		a.modal = confirmModal{}
	}
	return a, nil
}

func (a App) acceptModal() (tea.Model, tea.Cmd) {
	onYes := a.modal.onYes
	a.modal = confirmModal{}
	if onYes == nil {
		return a, nil
	}
	return onYes(a)
}

// quit stops the worker between tests and exits.
func (a App) quit() (tea.Model, tea.Cmd) {
	if a.cancel != nil {
		a.cancel()
	}
	return a, tea.Quit
}

// carryForward copies the results of tests left out of a partial rerun from
// the previous tree, so only the rerun tests show fresh results.
func (a *App) carryForward() {
	if a.previous == nil {
		return
	}
	for _, id := range a.tree.Identities() {
		if a.rerun[id] {
			continue
		}
		old, ok := a.previous.Lookup(id)
		if !ok {
			continue
		}
		if status := a.previous.Status(old); status.Terminal() {
			a.tree.ApplyOutcome(id, status, a.previous.Tooltip(old), a.previous.Elapsed(old))
		}
	}
}

// View implements tea.Model
func (a App) View() string {
	var content string
	switch a.screen {
	case screenDetail:
		content = a.detailView.View()
	case screenHelp:
		content = a.helpView.View()
	default:
		content = a.treeView.View()
		if a.lastErr != "" {
			content += "\n\n" + errorStyle.Render("✗ "+a.lastErr)
		}
	}

	if a.modal.open {
		return RenderConfirmModal(a.modal.title, "", a.modal.yes, a.width, a.height)
	}
	return content
}

var errorStyle = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)

// worker runs one cycle off the UI goroutine. It owns the runner for the
// duration of the cycle and only talks to the UI through events.
type worker struct {
	cycler Cycler
	opts   Options
	ids    []suite.Identity
	gen    int
	events chan<- tea.Msg
}

func (w worker) run(ctx context.Context) {
	defer close(w.events)

	s, err := w.cycler.Discover(ctx, w.opts.Paths, w.opts.Specific)
	if err != nil {
		w.send(ctx, cycleDoneMsg{gen: w.gen, err: err})
		return
	}
	w.send(ctx, discoveredMsg{gen: w.gen, suite: s})

	run := s
	if w.ids != nil {
		run = runner.Select(s, w.ids)
	}
	if run == nil {
		w.send(ctx, cycleDoneMsg{gen: w.gen})
		return
	}
	summary, err := w.cycler.Run(ctx, run, sink{w: w, ctx: ctx})
	w.send(ctx, cycleDoneMsg{gen: w.gen, summary: summary, err: err})
}

// send drops the message once the UI has gone away.
func (w worker) send(ctx context.Context, msg tea.Msg) {
	select {
	case w.events <- msg:
	case <-ctx.Done():
	}
}

// sink forwards runner results to the UI.
type sink struct {
	w   worker
	ctx context.Context
}

func (s sink) ApplyOutcome(id suite.Identity, status suite.Status, detail string, elapsed time.Duration) bool {
	s.w.send(s.ctx, resultMsg{gen: s.w.gen, id: id, status: status, detail: detail, elapsed: elapsed})
	return true
}

func (s sink) TestStarted(id suite.Identity) {
	s.w.send(s.ctx, testStartedMsg{gen: s.w.gen, id: id})
}
