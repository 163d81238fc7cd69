package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rickchristie/govner/mayatdd/internal/runner"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
)

// fakeCycler discovers a fixed suite and "runs" tests by looking up their
// status in outcomes.
type fakeCycler struct {
	suite       *suite.Suite
	discoverErr error
	outcomes    map[suite.Identity]suite.Status
	ran         [][]suite.Identity
}

func (f *fakeCycler) Discover(ctx context.Context, paths []string, specific suite.Identity) (*suite.Suite, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.suite, nil
}

func (f *fakeCycler) Run(ctx context.Context, s *suite.Suite, sink runner.Sink) (runner.Summary, error) {
	var summary runner.Summary
	f.ran = append(f.ran, s.Identities())
	for _, leaf := range s.Leaves() {
		id := leaf.ID()
		if n, ok := sink.(runner.StartNotifier); ok {
			n.TestStarted(id)
		}
		status := suite.StatusError
		if leaf.Kind == suite.KindCase {
			status = f.outcomes[id]
		}
		sink.ApplyOutcome(id, status, "detail of "+string(id), 0)
		summary.Total++
	}
	return summary, nil
}

func scenarioSuite() *suite.Suite {
	return suite.New("",
		suite.New("test_a",
			suite.New("A",
				suite.NewCase(suite.Test{Module: "test_a", Class: "A", Method: "test_fail"}),
				suite.NewCase(suite.Test{Module: "test_a", Class: "A", Method: "test_pass"}),
			),
		),
		suite.NewImportFailure("test_b", errors.New("module raises at import time")),
	)
}

func newScenario() *fakeCycler {
	return &fakeCycler{
		suite: scenarioSuite(),
		outcomes: map[suite.Identity]suite.Status{
			"test_a.A.test_fail": suite.StatusFail,
			"test_a.A.test_pass": suite.StatusSuccess,
		},
	}
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	require.True(t, ok)
	return app, cmd
}

// drain feeds every worker message of the running cycle into the app.
func drain(t *testing.T, a App) App {
	t.Helper()
	for msg := range a.events {
		a, _ = update(t, a, msg)
	}
	return a
}

func keyRune(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

func start(t *testing.T, c Cycler) App {
	t.Helper()
	a := NewApp(c, Options{Paths: []string{"/tests"}})
	a, _ = update(t, a, tea.WindowSizeMsg{Width: 120, Height: 40})
	a, _ = update(t, a, a.Init()())
	require.True(t, a.Running())
	return drain(t, a)
}

func TestApp_FirstCycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := start(t, newScenario())

	assert.False(t, a.Running())
	m := a.Model()
	assert.Equal(t, suite.StatusError, m.Status(m.Root()))
	n, ok := m.Lookup("test_a.A.test_fail")
	require.True(t, ok)
	assert.Equal(t, suite.StatusFail, m.Status(m.Parent(n)))
	assert.Equal(t, 3, a.Summary().Total)

	view := a.View()
	assert.Contains(t, view, "MAYATDD")
	assert.Contains(t, view, "test_a")
	assert.Contains(t, view, "Done")
}

func TestApp_RerunFailedKeepsOtherResults(t *testing.T) {
	c := newScenario()
	a := start(t, c)

	// The failing test is fixed before the rerun
	c.outcomes["test_a.A.test_fail"] = suite.StatusSuccess
	a, _ = update(t, a, keyRune("R"))
	require.True(t, a.Running())
	a = drain(t, a)

	require.Len(t, c.ran, 2)
	assert.Equal(t, []suite.Identity{"test_a.A.test_fail", "test_b"}, c.ran[1])

	m := a.Model()
	pass, _ := m.Lookup("test_a.A.test_pass")
	fail, _ := m.Lookup("test_a.A.test_fail")
	assert.Equal(t, suite.StatusSuccess, m.Status(pass), "carried over from the previous cycle")
	assert.Equal(t, suite.StatusSuccess, m.Status(fail))
	assert.Equal(t, suite.StatusError, m.Status(m.Root()), "import failure still errors")
}

func TestApp_RerunAllAsksFirst(t *testing.T) {
	c := newScenario()
	a := start(t, c)

	a, _ = update(t, a, keyRune("r"))
	assert.True(t, a.modal.open)
	assert.False(t, a.Running())
	assert.Contains(t, a.View(), "Rerun all tests?")

	// Enter on the default "No" closes the dialog
	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, a.modal.open)
	assert.False(t, a.Running())

	a, _ = update(t, a, keyRune("r"))
	a, _ = update(t, a, keyRune("y"))
	require.True(t, a.Running())
	a = drain(t, a)
	assert.Len(t, c.ran, 2)
	assert.Len(t, c.ran[1], 3)
}

func TestApp_RerunSelectedNode(t *testing.T) {
	c := newScenario()
	a := start(t, c)

	// Rows: test_a, A (collapsed), test_b
	a, _ = update(t, a, keyRune("j"))
	require.Equal(t, "A", a.Model().Name(a.treeView.Selected()))
	a, _ = update(t, a, keyRune("s"))
	a = drain(t, a)

	assert.Equal(t, []suite.Identity{"test_a.A.test_fail", "test_a.A.test_pass"}, c.ran[1])
}

func TestApp_DiscoveryErrorIsShown(t *testing.T) {
	c := newScenario()
	c.discoverErr = errors.New("discover \"x.y\": test not found")
	a := start(t, c)

	assert.False(t, a.Running())
	assert.Contains(t, a.View(), "test not found")
}

func TestApp_IgnoresStaleMessages(t *testing.T) {
	a := start(t, newScenario())
	m := a.Model()

	a, _ = update(t, a, resultMsg{gen: a.gen - 1, id: "test_a.A.test_pass", status: suite.StatusFail})
	n, _ := m.Lookup("test_a.A.test_pass")
	assert.Equal(t, suite.StatusSuccess, a.Model().Status(n))
}

func TestApp_Quit(t *testing.T) {
	a := start(t, newScenario())
	_, cmd := update(t, a, keyRune("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// While a cycle runs, quitting asks first
	running := NewApp(newScenario(), Options{})
	running.running = true
	running, cmd = update(t, running, keyRune("q"))
	assert.Nil(t, cmd)
	assert.True(t, running.modal.open)
	assert.Contains(t, running.View(), "Stop running tests?")
}

func TestApp_DetailScreen(t *testing.T) {
	a := start(t, newScenario())

	// Expand the class and go to the failing test
	a, _ = update(t, a, keyRune("j"))
	a, _ = update(t, a, keyRune("l"))
	a, _ = update(t, a, keyRune("j"))
	require.Equal(t, suite.Identity("test_a.A.test_fail"), a.Model().Identity(a.treeView.Selected()))

	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, screenDetail, a.screen)
	assert.Contains(t, a.View(), "detail of test_a.A.test_fail")
	assert.Contains(t, a.View(), "FAIL")

	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, screenTree, a.screen)

	a, _ = update(t, a, keyRune("?"))
	assert.Equal(t, screenHelp, a.screen)
	assert.Contains(t, a.View(), "rerun failed")
	a, _ = update(t, a, keyRune("?"))
	assert.Equal(t, screenTree, a.screen)
}

func TestCarryForward_SkipsRerunAndUnknown(t *testing.T) {
	prev := tree.Build(scenarioSuite())
	prev.ApplyResult("test_a.A.test_pass", suite.StatusSuccess, "")
	prev.ApplyResult("test_a.A.test_fail", suite.StatusFail, "boom")

	a := App{
		tree:     tree.Build(scenarioSuite()),
		previous: prev,
		rerun:    map[suite.Identity]bool{"test_a.A.test_fail": true},
	}
	a.carryForward()

	pass, _ := a.tree.Lookup("test_a.A.test_pass")
	fail, _ := a.tree.Lookup("test_a.A.test_fail")
	assert.Equal(t, suite.StatusSuccess, a.tree.Status(pass))
	assert.Equal(t, suite.StatusNotRun, a.tree.Status(fail))
}
