package tree

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

func tc(module, class, method string) *suite.Suite {
	return suite.NewCase(suite.Test{Module: module, Class: class, Method: method})
}

// scenario builds module A with a passing and a failing test, and module B
// that failed to import.
func scenario() *suite.Suite {
	a := suite.New("A",
		suite.New("ACase",
			tc("A", "ACase", "test_pass"),
			tc("A", "ACase", "test_fail"),
		),
	)
	a.Module = "A"
	b := suite.New("B", suite.NewImportFailure("B", errors.New("ImportError: boom")))
	return suite.New("", a, b)
}

func TestStatus_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		children []suite.Status
		expected suite.Status
	}{
		{"success and skipped", []suite.Status{suite.StatusSuccess, suite.StatusSkipped}, suite.StatusSuccess},
		{"skipped and success", []suite.Status{suite.StatusSkipped, suite.StatusSuccess}, suite.StatusSuccess},
		{"success and fail", []suite.Status{suite.StatusSuccess, suite.StatusFail}, suite.StatusFail},
		{"fail and error", []suite.Status{suite.StatusFail, suite.StatusError}, suite.StatusError},
		{"error first", []suite.Status{suite.StatusError, suite.StatusFail}, suite.StatusError},
		{"skipped and not run", []suite.Status{suite.StatusSkipped, suite.StatusNotRun}, suite.StatusSkipped},
		{"success and not run", []suite.Status{suite.StatusNotRun, suite.StatusSuccess}, suite.StatusSuccess},
		{"all not run", []suite.Status{suite.StatusNotRun, suite.StatusNotRun}, suite.StatusNotRun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := suite.New("P")
			for i := range tt.children {
				parent.Add(tc("mod", "Case", "test_"+string(rune('a'+i))))
			}
			m := Build(parent)
			for i, s := range tt.children {
				m.ApplyResult(suite.NewIdentity("mod", "Case", "test_"+string(rune('a'+i))), s, "")
			}
			assert.Equal(t, tt.expected, m.Status(m.Root()))
		})
	}
}

func TestStatus_ImportFailureOverridesChildren(t *testing.T) {
	module := suite.New("B", suite.NewImportFailure("B", errors.New("boom")))
	m := Build(suite.New("", module))

	b := m.Child(m.Root(), 0)
	assert.Equal(t, suite.StatusError, m.Status(b))
	assert.Equal(t, "boom", m.Tooltip(b))

	// A result for the marker cannot turn it green
	assert.True(t, m.ApplyResult("B", suite.StatusSuccess, ""))
	assert.Equal(t, suite.StatusError, m.Status(b))
	assert.Equal(t, "boom", m.Tooltip(m.Child(b, 0)))
}

func TestScenario_ImportFailureAndMixedResults(t *testing.T) {
	m := Build(scenario())

	m.ApplyResult("A.ACase.test_pass", suite.StatusSuccess, "")
	m.ApplyResult("A.ACase.test_fail", suite.StatusFail, "AssertionError: 1 != 2")

	root := m.Root()
	a := m.Child(root, 0)
	b := m.Child(root, 1)
	pass, _ := m.Lookup("A.ACase.test_pass")
	fail, _ := m.Lookup("A.ACase.test_fail")

	assert.Equal(t, suite.StatusError, m.Status(root))
	assert.Equal(t, suite.StatusFail, m.Status(a))
	assert.Equal(t, suite.StatusError, m.Status(b))
	assert.Equal(t, suite.StatusSuccess, m.Status(pass))
	assert.Equal(t, suite.StatusFail, m.Status(fail))
	assert.Equal(t, "AssertionError: 1 != 2", m.Tooltip(fail))

	assert.Equal(t, Counts{Total: 3, Success: 1, Fail: 1, Error: 1}, m.Counts(root))
	assert.Equal(t, []suite.Identity{"A.ACase.test_fail", "B"}, m.Failed())
}

func TestApplyResult_OrderIndependent(t *testing.T) {
	results := map[suite.Identity]suite.Status{
		"A.ACase.test_pass": suite.StatusSuccess,
		"A.ACase.test_fail": suite.StatusFail,
		"B":                 suite.StatusError,
	}
	inOrder := []suite.Identity{"A.ACase.test_pass", "A.ACase.test_fail", "B"}
	orders := [][]suite.Identity{
		inOrder,
		{"B", "A.ACase.test_fail", "A.ACase.test_pass"},
		{"A.ACase.test_fail", "B", "A.ACase.test_pass"},
	}

	snapshot := func(m *Model) []suite.Status {
		var out []suite.Status
		var walk func(NodeID)
		walk = func(id NodeID) {
			out = append(out, m.Status(id))
			for _, c := range m.Children(id) {
				walk(c)
			}
		}
		walk(m.Root())
		return out
	}

	reference := Build(scenario())
	for _, id := range inOrder {
		reference.ApplyResult(id, results[id], "")
	}
	expected := snapshot(reference)

	for _, order := range orders {
		m := Build(scenario())
		// Query between updates so memoised values must be invalidated
		for _, id := range order {
			_ = m.Status(m.Root())
			m.ApplyResult(id, results[id], "")
		}
		assert.Equal(t, expected, snapshot(m), "order %v", order)
	}
}

func TestApplyResult_LookupMissIsNoop(t *testing.T) {
	m := Build(scenario())
	var notified []NodeID
	m.Subscribe(func(id NodeID) { notified = append(notified, id) })

	before := m.Status(m.Root())
	assert.False(t, m.ApplyResult("C.Gone.test_x", suite.StatusFail, "late result"))
	assert.Equal(t, before, m.Status(m.Root()))
	assert.Empty(t, notified)
}

func TestApplyResult_NotifiesAncestors(t *testing.T) {
	m := Build(scenario())
	var notified []NodeID
	m.Subscribe(func(id NodeID) { notified = append(notified, id) })

	leaf, ok := m.Lookup("A.ACase.test_pass")
	require.True(t, ok)
	m.ApplyResult("A.ACase.test_pass", suite.StatusSuccess, "")

	class := m.Parent(leaf)
	module := m.Parent(class)
	assert.Equal(t, []NodeID{leaf, class, module, m.Root()}, notified)
}

func TestStatus_MemoInvalidatedOnUpdate(t *testing.T) {
	m := Build(scenario())
	a := m.Child(m.Root(), 0)

	assert.Equal(t, suite.StatusNotRun, m.Status(a))
	m.ApplyResult("A.ACase.test_pass", suite.StatusSuccess, "")
	assert.Equal(t, suite.StatusSuccess, m.Status(a))
	m.ApplyResult("A.ACase.test_fail", suite.StatusFail, "")
	assert.Equal(t, suite.StatusFail, m.Status(a))
	m.ApplyResult("A.ACase.test_fail", suite.StatusSuccess, "")
	assert.Equal(t, suite.StatusSuccess, m.Status(a))
}

func TestReadContract(t *testing.T) {
	m := Build(scenario())
	root := m.Root()

	assert.Equal(t, NoNode, m.Parent(root))
	assert.Equal(t, 0, m.Row(root))
	assert.Equal(t, 2, m.ChildCount(root))
	assert.Equal(t, NoNode, m.Child(root, 2))
	assert.Equal(t, NoNode, m.Child(root, -1))

	a := m.Child(root, 0)
	class := m.Child(a, 0)
	fail := m.Child(class, 1)
	assert.Equal(t, 1, m.Row(fail))
	assert.Equal(t, 3, m.Depth(fail))
	assert.Equal(t, class, m.Parent(fail))

	assert.Equal(t, "A", m.Name(root), "unnamed root takes the first descendant's module")
	assert.Equal(t, "A", m.Name(a))
	assert.Equal(t, "ACase", m.Name(class))
	assert.Equal(t, "test_fail", m.Name(fail))
	assert.Equal(t, suite.KindCase, m.Kind(fail))
	assert.Equal(t, suite.KindImportFailure, m.Kind(m.Child(m.Child(root, 1), 0)))
	assert.Equal(t, suite.Identity("A.ACase.test_fail"), m.Identity(fail))
	assert.Equal(t, suite.Identity(""), m.Identity(class))

	assert.Equal(t, []suite.Identity{"A.ACase.test_pass", "A.ACase.test_fail", "B"}, m.Identities())
	assert.Equal(t, []suite.Identity{"A.ACase.test_pass", "A.ACase.test_fail"}, m.IdentitiesUnder(a))
	assert.Equal(t, 7, m.Len())
}

func TestElapsed_SumsLeaves(t *testing.T) {
	m := Build(scenario())
	m.ApplyOutcome("A.ACase.test_pass", suite.StatusSuccess, "", 2*time.Second)
	m.ApplyOutcome("A.ACase.test_fail", suite.StatusFail, "", 500*time.Millisecond)

	assert.Equal(t, 2500*time.Millisecond, m.Elapsed(m.Child(m.Root(), 0)))
}

func TestRemove_DetachesSubtree(t *testing.T) {
	m := Build(scenario())
	root := m.Root()
	b := m.Child(root, 1)

	assert.Equal(t, suite.StatusError, m.Status(root))
	require.True(t, m.Remove(b))

	assert.Equal(t, 1, m.ChildCount(root))
	_, ok := m.Lookup("B")
	assert.False(t, ok)
	assert.False(t, m.ApplyResult("B", suite.StatusError, ""))
	assert.Equal(t, suite.StatusNotRun, m.Status(root), "aggregate recomputed without removed subtree")
	assert.Equal(t, 5, m.Len())

	assert.False(t, m.Remove(b), "already removed")
	assert.False(t, m.Remove(root), "root cannot be removed")
}

func TestStatus_SkippedModuleMarker(t *testing.T) {
	skipErr := fmt.Errorf("%w: needs a GPU", suite.ErrSkipModule)
	module := suite.New("C", suite.NewImportFailure("C", skipErr))
	m := Build(suite.New("", module, tc("D", "DCase", "test_ok")))

	c := m.Child(m.Root(), 0)
	assert.Equal(t, suite.StatusSkipped, m.Status(c))
	assert.True(t, m.ApplyResult("C", suite.StatusError, ""))
	assert.Equal(t, suite.StatusSkipped, m.Status(c))

	m.ApplyResult("D.DCase.test_ok", suite.StatusSuccess, "")
	assert.Equal(t, suite.StatusSuccess, m.Status(m.Root()))
	assert.Empty(t, m.Failed())

	m.Reset()
	assert.Equal(t, suite.StatusSkipped, m.Status(c))
}

func TestReset_KeepsMarkers(t *testing.T) {
	m := Build(scenario())
	m.ApplyResult("A.ACase.test_pass", suite.StatusSuccess, "")
	m.ApplyResult("A.ACase.test_fail", suite.StatusFail, "detail")

	m.Reset()

	fail, _ := m.Lookup("A.ACase.test_fail")
	assert.Equal(t, suite.StatusNotRun, m.Status(fail))
	assert.Empty(t, m.Tooltip(fail))
	assert.Equal(t, suite.StatusNotRun, m.Status(m.Child(m.Root(), 0)))
	assert.Equal(t, suite.StatusError, m.Status(m.Child(m.Root(), 1)))
	assert.Equal(t, []suite.Identity{"B"}, m.Failed())
}

func TestBuild_EmptySuite(t *testing.T) {
	m := Build(nil)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, suite.StatusNotRun, m.Status(m.Root()))
	assert.Equal(t, Counts{}, m.Counts(m.Root()))
	assert.Empty(t, m.Identities())
	assert.Equal(t, "", m.Name(m.Root()))
}
