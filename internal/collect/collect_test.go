package collect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickchristie/govner/mayatdd/internal/pyscan"
	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

const caseA = `import unittest


class TestA(unittest.TestCase):
    def test_two(self):
        pass

    def test_one(self):
        pass
`

const caseB = `import unittest


class TestB(unittest.TestCase):
    def test_x(self):
        pass
`

const brokenModule = `import unittest

class TestBroken(unittest.TestCase):
    def test_x(self):
        x = (1,
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func newCollector(opts Options) (*Collector, *session.Session) {
	loader := pyscan.NewLoader()
	s := session.New(loader)
	loader.Bind(s)
	return New(s, opts), s
}

func discoveryTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"test_a.py":             caseA,
		"test_broken.py":        brokenModule,
		"helper.py":             caseB,
		"pkg/__init__.py":       "",
		"pkg/test_b.py":         caseB,
		"notpkg/test_c.py":      caseB,
		".hidden/__init__.py":   "",
		".hidden/test_h.py":     caseB,
		"skipme/__init__.py":    "",
		"skipme/test_s.py":      caseB,
		"build_out/__init__.py": "",
		"build_out/test_o.py":   caseB,
	})
}

func TestCollect_DirectoryDiscovery(t *testing.T) {
	root := discoveryTree(t)
	c, _ := newCollector(Options{Blacklist: []string{"skipme", "build_*"}})

	s, err := c.Collect([]string{root}, "")
	require.NoError(t, err)

	assert.Equal(t, []suite.Identity{
		"pkg.test_b.TestB.test_x",
		"test_a.TestA.test_one",
		"test_a.TestA.test_two",
		"test_broken",
	}, s.Identities())

	leaves := s.Leaves()
	assert.Equal(t, suite.KindImportFailure, leaves[3].Kind)
	assert.Error(t, leaves[3].Err)
}

func TestCollect_DiscoveryIsDeterministic(t *testing.T) {
	root := discoveryTree(t)
	c, _ := newCollector(Options{Blacklist: []string{"skipme"}})

	first, err := c.Collect([]string{root}, "")
	require.NoError(t, err)
	second, err := c.Collect([]string{root}, "")
	require.NoError(t, err)

	assert.Equal(t, first.Identities(), second.Identities())

	// A fresh session over the same tree agrees as well
	other, _ := newCollector(Options{Blacklist: []string{"skipme"}})
	third, err := other.Collect([]string{root}, "")
	require.NoError(t, err)
	assert.Equal(t, first.Identities(), third.Identities())
}

func TestCollect_CustomPattern(t *testing.T) {
	root := writeTree(t, map[string]string{
		"test_a.py":  caseA,
		"a_check.py": caseB,
	})
	c, _ := newCollector(Options{Pattern: "*_check.py"})

	s, err := c.Collect([]string{root}, "")
	require.NoError(t, err)
	assert.Equal(t, []suite.Identity{"a_check.TestB.test_x"}, s.Identities())
}

func TestCollect_DirectoriesBeforeModulesAndDeduplicated(t *testing.T) {
	dirRoot := writeTree(t, map[string]string{"test_b.py": caseB})
	fileRoot := writeTree(t, map[string]string{"test_a.py": caseA})
	c, _ := newCollector(Options{})

	explicit := filepath.Join(fileRoot, "test_a.py")
	s, err := c.Collect([]string{explicit, dirRoot, explicit}, "")
	require.NoError(t, err)

	assert.Equal(t, []suite.Identity{
		"test_b.TestB.test_x",
		"test_a.TestA.test_one",
		"test_a.TestA.test_two",
	}, s.Identities())
}

func TestCollect_SameModuleNameInTwoRoots(t *testing.T) {
	modA := writeTree(t, map[string]string{"tests/test_core.py": caseA})
	modB := writeTree(t, map[string]string{"tests/test_core.py": caseB})
	c, s := newCollector(Options{ModuleRoots: []string{modA, modB}})

	collected, err := c.Collect(nil, "")
	require.NoError(t, err)

	assert.Equal(t, []suite.Identity{
		"test_core.TestA.test_one",
		"test_core.TestA.test_two",
		"test_core",
	}, collected.Identities())

	leaves := collected.Leaves()
	marker := leaves[len(leaves)-1]
	require.Equal(t, suite.KindImportFailure, marker.Kind)
	var shadowed *ShadowedModuleError
	require.ErrorAs(t, marker.Err, &shadowed)
	assert.Equal(t, filepath.Join(modB, "tests", "test_core.py"), shadowed.File)
	assert.Equal(t, filepath.Join(modA, "tests", "test_core.py"), shadowed.Collected)
	assert.Contains(t, marker.Err.Error(), "incorrectly imported")

	// The cache keeps the first file under that name
	m, ok := s.Modules.Get("test_core")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(modA, "tests", "test_core.py"), m.File)
}

func TestCollect_EmptyIsNotAnError(t *testing.T) {
	root := writeTree(t, map[string]string{"readme.txt": "nothing"})
	c, _ := newCollector(Options{})

	s, err := c.Collect([]string{root, filepath.Join(root, "missing")}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestCollect_DefaultModuleRoots(t *testing.T) {
	modA := writeTree(t, map[string]string{"tests/test_a.py": caseA})
	modB := writeTree(t, map[string]string{"scripts/test_b.py": caseB})

	t.Run("configured roots", func(t *testing.T) {
		c, _ := newCollector(Options{ModuleRoots: []string{modA, modB}})
		s, err := c.Collect(nil, "")
		require.NoError(t, err)
		assert.Equal(t, []suite.Identity{"test_a.TestA.test_one", "test_a.TestA.test_two"}, s.Identities())
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(ModulePathEnv, modB+string(os.PathListSeparator)+modA)
		c, _ := newCollector(Options{})
		assert.Equal(t, []string{filepath.Join(modA, ModuleTestsDir)}, c.DefaultRoots())
	})
}

func specificTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"pkg/__init__.py":     "",
		"pkg/mod.py":          "import unittest\n\nclass Case(unittest.TestCase):\n    def test_y(self): pass\n    def test_x(self): pass\n",
		"pkg/test_bad.py":     brokenModule,
		"pkg/sub/__init__.py": "",
	})
}

func TestCollect_SpecificTest(t *testing.T) {
	root := specificTree(t)

	tests := []struct {
		name     string
		specific suite.Identity
		expected []suite.Identity
	}{
		{
			name:     "method",
			specific: "pkg.mod.Case.test_x",
			expected: []suite.Identity{"pkg.mod.Case.test_x"},
		},
		{
			name:     "class",
			specific: "pkg.mod.Case",
			expected: []suite.Identity{"pkg.mod.Case.test_x", "pkg.mod.Case.test_y"},
		},
		{
			name:     "module",
			specific: "pkg.mod",
			expected: []suite.Identity{"pkg.mod.Case.test_x", "pkg.mod.Case.test_y"},
		},
		{
			name:     "import failure",
			specific: "pkg.test_bad.TestBroken.test_x",
			expected: []suite.Identity{"pkg.test_bad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := newCollector(Options{})

			got, err := c.Collect([]string{root}, tt.specific)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Identities())
			assert.False(t, s.Path.Contains(root), "temporary path must be removed")
			assert.Equal(t, 0, s.Path.Len())
		})
	}
}

func TestCollect_SpecificKeepsSessionPaths(t *testing.T) {
	root := specificTree(t)
	c, s := newCollector(Options{})
	s.Path.Prepend(root)

	_, err := c.Collect([]string{root}, "pkg.mod.Case.test_x")
	require.NoError(t, err)
	assert.Equal(t, []string{root}, s.Path.Entries(), "pre-existing entries are not removed")
}

func TestCollect_SpecificErrors(t *testing.T) {
	root := specificTree(t)

	tests := []struct {
		name     string
		specific suite.Identity
		target   error
	}{
		{name: "unknown module", specific: "nope.Case.test_x", target: ErrNotFound},
		{name: "unknown class", specific: "pkg.mod.Missing", target: ErrNotFound},
		{name: "unknown method", specific: "pkg.mod.Case.test_z", target: ErrNotFound},
		{name: "too deep", specific: "pkg.mod.Case.test_x.extra", target: ErrNotFound},
		{name: "malformed", specific: "pkg..mod", target: ErrMalformedIdentity},
		{name: "bad segment", specific: "pkg.mod.1Case", target: ErrMalformedIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := newCollector(Options{})

			_, err := c.Collect([]string{root}, tt.specific)
			require.Error(t, err)
			var discErr *DiscoveryError
			require.ErrorAs(t, err, &discErr)
			assert.Equal(t, tt.specific, discErr.Identity)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, 0, s.Path.Len(), "no path leak on error")
		})
	}
}

func TestModuleName(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/__init__.py":        "",
		"pkg/sub/__init__.py":    "",
		"pkg/sub/test_deep.py":   caseB,
		"loose/test_loose.py":    caseB,
		"pkg/sub/not_python.txt": "",
	})

	name, err := ModuleName(filepath.Join(root, "pkg", "sub", "test_deep.py"))
	require.NoError(t, err)
	assert.Equal(t, "pkg.sub.test_deep", name)

	name, err = ModuleName(filepath.Join(root, "pkg", "sub", "__init__.py"))
	require.NoError(t, err)
	assert.Equal(t, "pkg.sub", name)

	name, err = ModuleName(filepath.Join(root, "loose", "test_loose.py"))
	require.NoError(t, err)
	assert.Equal(t, "test_loose", name)

	_, err = ModuleName(filepath.Join(root, "pkg", "sub", "not_python.txt"))
	assert.Error(t, err)
}

func TestModuleRoot(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/__init__.py":      "",
		"pkg/sub/__init__.py":  "",
		"pkg/sub/test_deep.py": caseB,
	})
	c, s := newCollector(Options{})

	_, err := c.Collect([]string{root}, "")
	require.NoError(t, err)
	m, ok := s.Modules.Get("pkg.sub.test_deep")
	require.True(t, ok)
	assert.Equal(t, root, m.Root())
}
