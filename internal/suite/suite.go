package suite

import "errors"

// ErrSkipModule marks an import failure that unittest reports as a skip: the
// module raised SkipTest at import time.
var ErrSkipModule = errors.New("module skipped")

// Kind tags what a Suite element is. It is decided once at discovery time.
type Kind uint8

const (
	// KindSuite is an ordered container of suites, cases and markers.
	KindSuite Kind = iota
	// KindCase is one runnable test method.
	KindCase
	// KindImportFailure marks a module that raised while being imported.
	KindImportFailure
)

func (k Kind) String() string {
	switch k {
	case KindCase:
		return "case"
	case KindImportFailure:
		return "import-failure"
	default:
		return "suite"
	}
}

// Test names one test method.
type Test struct {
	Module string // Dotted module name (e.g. "rig.tests.test_joints")
	Class  string // TestCase subclass name
	Method string // Test method name
}

// ID returns module.Class.method
func (t Test) ID() Identity {
	return NewIdentity(t.Module, t.Class, t.Method)
}

// Suite is an element of the collected test hierarchy.
type Suite struct {
	Kind     Kind
	Name     string   // Display name for containers; empty derives from descendants
	Test     Test     // Set for KindCase
	Module   string   // Set for KindImportFailure (and module-level suites)
	Err      error    // Import error for KindImportFailure
	Children []*Suite // Only for KindSuite
}

// New creates a container suite.
func New(name string, children ...*Suite) *Suite {
	s := &Suite{Kind: KindSuite, Name: name}
	s.Add(children...)
	return s
}

// NewCase creates a leaf for a single test method.
func NewCase(t Test) *Suite {
	return &Suite{Kind: KindCase, Name: t.Method, Test: t, Module: t.Module}
}

// NewImportFailure creates a marker for a module that failed to import.
func NewImportFailure(module string, err error) *Suite {
	return &Suite{Kind: KindImportFailure, Name: module, Module: module, Err: err}
}

// MarkerStatus is the fixed status of an import failure marker: SKIPPED when
// the module skipped itself, ERROR otherwise.
func (s *Suite) MarkerStatus() Status {
	if errors.Is(s.Err, ErrSkipModule) {
		return StatusSkipped
	}
	return StatusError
}

// Add appends children, skipping nils. Adding to a non-container is a no-op.
func (s *Suite) Add(children ...*Suite) {
	if s.Kind != KindSuite {
		return
	}
	for _, c := range children {
		if c != nil {
			s.Children = append(s.Children, c)
		}
	}
}

// IsLeaf reports whether this element is a runnable case or a marker.
func (s *Suite) IsLeaf() bool {
	return s.Kind != KindSuite
}

// ID returns the identity for leaves, and an empty identity for containers.
func (s *Suite) ID() Identity {
	switch s.Kind {
	case KindCase:
		return s.Test.ID()
	case KindImportFailure:
		return Identity(s.Module)
	}
	return ""
}

// Count returns the number of leaves, like unittest's countTestCases.
func (s *Suite) Count() int {
	if s.IsLeaf() {
		return 1
	}
	n := 0
	for _, c := range s.Children {
		n += c.Count()
	}
	return n
}

// Leaves returns all cases and markers in suite order.
func (s *Suite) Leaves() []*Suite {
	var out []*Suite
	s.Walk(func(e *Suite) {
		if e.IsLeaf() {
			out = append(out, e)
		}
	})
	return out
}

// Identities returns the identity of every leaf in suite order.
func (s *Suite) Identities() []Identity {
	leaves := s.Leaves()
	ids := make([]Identity, len(leaves))
	for i, l := range leaves {
		ids[i] = l.ID()
	}
	return ids
}

// Walk visits the element and all descendants in pre-order.
func (s *Suite) Walk(fn func(*Suite)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// FirstLeaf returns the first leaf in suite order, or nil for an empty suite.
func (s *Suite) FirstLeaf() *Suite {
	if s.IsLeaf() {
		return s
	}
	for _, c := range s.Children {
		if l := c.FirstLeaf(); l != nil {
			return l
		}
	}
	return nil
}

// Filter returns a copy containing only leaves accepted by keep. Containers
// left empty are dropped. Returns nil when nothing is kept.
func (s *Suite) Filter(keep func(*Suite) bool) *Suite {
	if s.IsLeaf() {
		if keep(s) {
			return s
		}
		return nil
	}
	out := &Suite{Kind: KindSuite, Name: s.Name, Module: s.Module}
	for _, c := range s.Children {
		if fc := c.Filter(keep); fc != nil {
			out.Children = append(out.Children, fc)
		}
	}
	if len(out.Children) == 0 {
		return nil
	}
	return out
}
