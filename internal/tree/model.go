// Package tree maps a collected suite onto an arena of nodes and aggregates
// leaf results up to the root.
//
// Nodes are addressed by NodeID. A node with children never stores a status;
// its status is folded from its children on demand and memoised until a
// result below it changes.
package tree

import (
	"time"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// NodeID addresses a node in a Model. IDs are stable for the lifetime of the
// model, including after Remove.
type NodeID int

// NoNode is the parent of the root and the result of failed lookups.
const NoNode NodeID = -1

// Counts tallies leaf statuses below a node.
type Counts struct {
	Total   int
	NotRun  int
	Success int
	Fail    int
	Error   int
	Skipped int
}

func (c *Counts) add(s suite.Status) {
	c.Total++
	switch s {
	case suite.StatusSuccess:
		c.Success++
	case suite.StatusFail:
		c.Fail++
	case suite.StatusError:
		c.Error++
	case suite.StatusSkipped:
		c.Skipped++
	default:
		c.NotRun++
	}
}

func (c *Counts) merge(o Counts) {
	c.Total += o.Total
	c.NotRun += o.NotRun
	c.Success += o.Success
	c.Fail += o.Fail
	c.Error += o.Error
	c.Skipped += o.Skipped
}

// Done returns how many leaves reached a terminal status.
func (c Counts) Done() int {
	return c.Total - c.NotRun
}

type node struct {
	parent   NodeID
	children []NodeID
	element  *suite.Suite
	removed  bool

	// Leaves only
	status  suite.Status
	detail  string
	elapsed time.Duration

	// Memoised aggregates, invalidated up the ancestor chain
	valid   bool
	agg     suite.Status
	counts  Counts
	aggTime time.Duration
}

// Model is the status tree for one collected suite. It is not safe for
// concurrent use; the runner and UI drive it from a single goroutine.
type Model struct {
	nodes       []node
	index       map[suite.Identity]NodeID
	subscribers []func(NodeID)
}

// Build wraps root and every descendant in nodes and indexes leaves by
// identity in pre-order. Import failure markers start as ERROR.
func Build(root *suite.Suite) *Model {
	if root == nil {
		root = suite.New("")
	}
	m := &Model{
		nodes: make([]node, 0, root.Count()+1),
		index: make(map[suite.Identity]NodeID),
	}
	m.add(root, NoNode)
	return m
}

func (m *Model) add(el *suite.Suite, parent NodeID) NodeID {
	id := NodeID(len(m.nodes))
	n := node{parent: parent, element: el}
	if el.Kind == suite.KindImportFailure {
		n.status = el.MarkerStatus()
		if el.Err != nil {
			n.detail = el.Err.Error()
		}
	}
	m.nodes = append(m.nodes, n)

	if el.IsLeaf() {
		if _, dup := m.index[el.ID()]; !dup {
			m.index[el.ID()] = id
		}
		return id
	}
	for _, c := range el.Children {
		child := m.add(c, id)
		m.nodes[id].children = append(m.nodes[id].children, child)
	}
	return id
}

func (m *Model) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(m.nodes) && !m.nodes[id].removed
}

// Len returns the number of live nodes, root included.
func (m *Model) Len() int {
	n := 0
	for i := range m.nodes {
		if !m.nodes[i].removed {
			n++
		}
	}
	return n
}

// Root returns the root node.
func (m *Model) Root() NodeID {
	return 0
}

// Parent returns the parent of id, or NoNode for the root.
func (m *Model) Parent(id NodeID) NodeID {
	if !m.valid(id) {
		return NoNode
	}
	return m.nodes[id].parent
}

// Children returns the ordered children of id.
func (m *Model) Children(id NodeID) []NodeID {
	if !m.valid(id) {
		return nil
	}
	out := make([]NodeID, len(m.nodes[id].children))
	copy(out, m.nodes[id].children)
	return out
}

// ChildCount returns the number of children of id.
func (m *Model) ChildCount(id NodeID) int {
	if !m.valid(id) {
		return 0
	}
	return len(m.nodes[id].children)
}

// Child returns the child at row, or NoNode when out of bounds.
func (m *Model) Child(id NodeID, row int) NodeID {
	if !m.valid(id) || row < 0 || row >= len(m.nodes[id].children) {
		return NoNode
	}
	return m.nodes[id].children[row]
}

// Row returns the index of id within its parent. The root is row 0.
func (m *Model) Row(id NodeID) int {
	p := m.Parent(id)
	if p == NoNode {
		return 0
	}
	for i, c := range m.nodes[p].children {
		if c == id {
			return i
		}
	}
	return 0
}

// Depth returns the number of ancestors of id.
func (m *Model) Depth(id NodeID) int {
	d := 0
	for p := m.Parent(id); p != NoNode; p = m.Parent(p) {
		d++
	}
	return d
}

// Element returns the suite element a node wraps.
func (m *Model) Element(id NodeID) *suite.Suite {
	if !m.valid(id) {
		return nil
	}
	return m.nodes[id].element
}

// Kind returns the element kind of id.
func (m *Model) Kind(id NodeID) suite.Kind {
	if !m.valid(id) {
		return suite.KindSuite
	}
	return m.nodes[id].element.Kind
}

// Name returns the display name. Unnamed containers take the module of their
// first descendant.
func (m *Model) Name(id NodeID) string {
	el := m.Element(id)
	if el == nil {
		return ""
	}
	if el.Name != "" {
		return el.Name
	}
	if el.Module != "" {
		return el.Module
	}
	if leaf := el.FirstLeaf(); leaf != nil {
		return leaf.Module
	}
	return ""
}

// Identity returns the leaf identity of id, or "" for containers.
func (m *Model) Identity(id NodeID) suite.Identity {
	el := m.Element(id)
	if el == nil {
		return ""
	}
	return el.ID()
}

// Tooltip returns the failure detail of a leaf. A container wrapping only an
// import failure shows the import error.
func (m *Model) Tooltip(id NodeID) string {
	if !m.valid(id) {
		return ""
	}
	n := &m.nodes[id]
	if n.element.IsLeaf() {
		return n.detail
	}
	if len(n.children) == 1 && m.nodes[n.children[0]].element.Kind == suite.KindImportFailure {
		return m.nodes[n.children[0]].detail
	}
	return ""
}

// Status returns the stored status of a leaf or the aggregate of a container.
func (m *Model) Status(id NodeID) suite.Status {
	if !m.valid(id) {
		return suite.StatusNotRun
	}
	n := &m.nodes[id]
	if n.element.Kind == suite.KindImportFailure {
		return n.element.MarkerStatus()
	}
	if len(n.children) == 0 {
		return n.status
	}
	if only := m.nodes[n.children[0]].element; len(n.children) == 1 && only.Kind == suite.KindImportFailure {
		return only.MarkerStatus()
	}
	m.ensure(id)
	return n.agg
}

// Counts returns the leaf tally at or below id.
func (m *Model) Counts(id NodeID) Counts {
	if !m.valid(id) {
		return Counts{}
	}
	n := &m.nodes[id]
	if len(n.children) == 0 {
		if !n.element.IsLeaf() {
			return Counts{}
		}
		var c Counts
		c.add(m.Status(id))
		return c
	}
	m.ensure(id)
	return n.counts
}

// Elapsed returns the leaf's run time, or the sum over a container.
func (m *Model) Elapsed(id NodeID) time.Duration {
	if !m.valid(id) {
		return 0
	}
	n := &m.nodes[id]
	if len(n.children) == 0 {
		return n.elapsed
	}
	m.ensure(id)
	return n.aggTime
}

// ensure recomputes the memoised aggregates of a container.
func (m *Model) ensure(id NodeID) {
	n := &m.nodes[id]
	if n.valid {
		return
	}
	statuses := make([]suite.Status, 0, len(n.children))
	var counts Counts
	var elapsed time.Duration
	for _, c := range n.children {
		statuses = append(statuses, m.Status(c))
		counts.merge(m.Counts(c))
		elapsed += m.Elapsed(c)
	}
	n.agg = suite.Aggregate(statuses)
	n.counts = counts
	n.aggTime = elapsed
	n.valid = true
}

// invalidate drops memoised aggregates of id's ancestors.
func (m *Model) invalidate(id NodeID) {
	for p := m.nodes[id].parent; p != NoNode; p = m.nodes[p].parent {
		m.nodes[p].valid = false
	}
	m.nodes[id].valid = false
}

// Lookup finds the leaf with the given identity.
func (m *Model) Lookup(identity suite.Identity) (NodeID, bool) {
	id, ok := m.index[identity]
	return id, ok
}

// ApplyResult records a leaf result. Unknown identities are ignored, since a
// result may arrive after the tree was rebuilt. Returns whether a node was
// updated.
func (m *Model) ApplyResult(identity suite.Identity, status suite.Status, detail string) bool {
	return m.ApplyOutcome(identity, status, detail, 0)
}

// ApplyOutcome is ApplyResult with the test's run time.
func (m *Model) ApplyOutcome(identity suite.Identity, status suite.Status, detail string, elapsed time.Duration) bool {
	id, ok := m.index[identity]
	if !ok {
		return false
	}
	n := &m.nodes[id]
	if n.element.Kind == suite.KindImportFailure {
		// Markers keep their status; only the detail may improve.
		status = n.element.MarkerStatus()
		if detail == "" {
			detail = n.detail
		}
	}
	n.status = status
	n.detail = detail
	n.elapsed = elapsed
	m.invalidate(id)
	m.notify(id)
	return true
}

// Subscribe registers fn to be called with every node whose displayed state
// changed: the updated leaf first, then each ancestor up to the root.
func (m *Model) Subscribe(fn func(NodeID)) {
	m.subscribers = append(m.subscribers, fn)
}

func (m *Model) notify(id NodeID) {
	if len(m.subscribers) == 0 {
		return
	}
	for cur := id; cur != NoNode; cur = m.nodes[cur].parent {
		for _, fn := range m.subscribers {
			fn(cur)
		}
	}
}

// Identities returns the identities of all live leaves in suite order.
func (m *Model) Identities() []suite.Identity {
	return m.collect(m.Root(), func(NodeID) bool { return true })
}

// IdentitiesUnder returns the leaf identities at or below id.
func (m *Model) IdentitiesUnder(id NodeID) []suite.Identity {
	if !m.valid(id) {
		return nil
	}
	return m.collect(id, func(NodeID) bool { return true })
}

// Failed returns the identities of leaves that failed or errored.
func (m *Model) Failed() []suite.Identity {
	return m.collect(m.Root(), func(id NodeID) bool {
		return m.Status(id).Failed()
	})
}

func (m *Model) collect(id NodeID, keep func(NodeID) bool) []suite.Identity {
	var out []suite.Identity
	var walk func(NodeID)
	walk = func(cur NodeID) {
		n := &m.nodes[cur]
		if n.element.IsLeaf() {
			if keep(cur) {
				out = append(out, n.element.ID())
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(id)
	return out
}

// Remove detaches the subtree at id from its parent and drops its leaves
// from the identity index. The root cannot be removed.
func (m *Model) Remove(id NodeID) bool {
	if !m.valid(id) || id == m.Root() {
		return false
	}
	parent := m.nodes[id].parent
	siblings := m.nodes[parent].children
	for i, c := range siblings {
		if c == id {
			m.nodes[parent].children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}

	var drop func(NodeID)
	drop = func(cur NodeID) {
		n := &m.nodes[cur]
		n.removed = true
		if n.element.IsLeaf() {
			if idx, ok := m.index[n.element.ID()]; ok && idx == cur {
				delete(m.index, n.element.ID())
			}
		}
		for _, c := range n.children {
			drop(c)
		}
	}
	drop(id)

	m.invalidate(parent)
	m.notify(parent)
	return true
}

// Reset clears every leaf result. Import failure markers keep their status.
func (m *Model) Reset() {
	for i := range m.nodes {
		n := &m.nodes[i]
		n.valid = false
		if n.element.Kind == suite.KindImportFailure {
			continue
		}
		n.status = suite.StatusNotRun
		n.detail = ""
		n.elapsed = 0
	}
	m.notifyRoot()
}

func (m *Model) notifyRoot() {
	for _, fn := range m.subscribers {
		fn(m.Root())
	}
}
