// Package collect discovers unittest tests under search paths and builds the
// suite hierarchy the tree model and runner consume.
package collect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

const (
	// DefaultPattern matches unittest's default discovery pattern.
	DefaultPattern = "test*.py"
	// DefaultHiddenPrefix marks directories that are never walked.
	DefaultHiddenPrefix = "."
	// ModuleTestsDir is the directory scanned under each module root when no
	// paths are given.
	ModuleTestsDir = "tests"
	// ModulePathEnv lists module roots when none are configured.
	ModulePathEnv = "MAYA_MODULE_PATH"
)

// Options controls what a Collector walks and imports.
type Options struct {
	Pattern      string   // Doublestar pattern for test module file names
	Blacklist    []string // Directory names or doublestar patterns to skip
	HiddenPrefix string   // Directories starting with this are skipped
	ModuleRoots  []string // Roots whose tests/ dirs are scanned by default
}

// Collector builds suites from files, directories and named tests.
type Collector struct {
	session  *session.Session
	resolver *session.Resolver
	opts     Options
}

// New creates a collector importing through s.
func New(s *session.Session, opts Options) *Collector {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.HiddenPrefix == "" {
		opts.HiddenPrefix = DefaultHiddenPrefix
	}
	return &Collector{
		session:  s,
		resolver: session.NewResolver(s.Path),
		opts:     opts,
	}
}

// Collect discovers tests. With a specific identity, paths are only put on the
// import path for the duration of the call and exactly that test (or class,
// or module) is loaded. Otherwise directories are walked first, in the given
// order, followed by explicit module files. No paths and no identity scans the
// default module roots.
func (c *Collector) Collect(paths []string, specific suite.Identity) (*suite.Suite, error) {
	if specific != "" {
		return c.collectSpecific(paths, specific)
	}

	var files, dirs []string
	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			log.Warn().Str("path", p).Err(err).Msg("skipping search path")
		case info.IsDir():
			dirs = append(dirs, p)
		default:
			files = append(files, p)
		}
	}
	if len(paths) == 0 {
		dirs = c.DefaultRoots()
	}

	root := suite.New("")
	seen := make(map[string]string)
	for _, dir := range dirs {
		dirSuite := suite.New(dir)
		c.walk(dir, dir, "", dirSuite, seen)
		if dirSuite.Count() > 0 {
			root.Add(dirSuite)
		}
	}
	for _, file := range files {
		name, err := ModuleName(file)
		if err != nil {
			log.Warn().Str("file", file).Err(err).Msg("skipping module")
			continue
		}
		root.Add(c.importModule(name, file, seen))
	}

	log.Debug().Int("tests", root.Count()).Int("dirs", len(dirs)).Int("files", len(files)).Msg("discovery finished")
	return root, nil
}

// DefaultRoots returns the existing tests/ directory of every module root.
func (c *Collector) DefaultRoots() []string {
	roots := c.opts.ModuleRoots
	if len(roots) == 0 {
		if env := os.Getenv(ModulePathEnv); env != "" {
			roots = filepath.SplitList(env)
		}
	}
	var dirs []string
	for _, r := range roots {
		if r == "" {
			continue
		}
		p := filepath.Join(r, ModuleTestsDir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// walk adds test modules under dir to parent. pkg is the dotted package
// prefix of dir relative to the discovery root.
func (c *Collector) walk(root, dir, pkg string, parent *suite.Suite, seen map[string]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Str("dir", dir).Err(err).Msg("cannot read directory")
		return
	}

	// os.ReadDir sorts by name, which keeps discovery order stable.
	for _, e := range entries {
		name := e.Name()
		full := filepath.Join(dir, name)

		if e.IsDir() {
			if c.skipDir(root, full, name) {
				continue
			}
			// Only packages are importable below the root.
			if _, err := os.Stat(filepath.Join(full, session.PackageMarker)); err != nil {
				continue
			}
			c.walk(root, full, joinName(pkg, name), parent, seen)
			continue
		}

		if !strings.HasSuffix(name, ".py") || !c.matchPattern(name) {
			continue
		}
		module := joinName(pkg, strings.TrimSuffix(name, ".py"))
		parent.Add(c.importModule(module, full, seen))
	}
}

func (c *Collector) skipDir(root, full, name string) bool {
	if strings.HasPrefix(name, c.opts.HiddenPrefix) || name == "__pycache__" {
		return true
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		rel = name
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range c.opts.Blacklist {
		if pattern == name {
			return true
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (c *Collector) matchPattern(fileName string) bool {
	ok, err := doublestar.Match(c.opts.Pattern, fileName)
	if err != nil {
		log.Warn().Str("pattern", c.opts.Pattern).Err(err).Msg("invalid test module pattern")
		return false
	}
	return ok
}

// importModule loads a module and converts it to a suite. A file already
// collected in this call returns nil. A different file with an already
// collected name and import failures become markers.
func (c *Collector) importModule(name, file string, seen map[string]string) *suite.Suite {
	if prev, ok := seen[name]; ok {
		if sameFile(prev, file) {
			log.Debug().Str("module", name).Msg("module already collected")
			return nil
		}
		err := &ShadowedModuleError{Module: name, File: file, Collected: prev}
		log.Warn().Str("module", name).Str("file", file).Str("collected", prev).Msg("module name collides with another search root")
		return suite.NewImportFailure(name, err)
	}
	seen[name] = file

	m, err := c.session.Modules.ImportFile(name, file)
	if err != nil {
		log.Warn().Str("module", name).Err(err).Msg("module failed to import")
		return suite.NewImportFailure(name, err)
	}
	s := moduleSuite(m)
	if s.Count() == 0 {
		return nil
	}
	return s
}

func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}

func (c *Collector) collectSpecific(paths []string, id suite.Identity) (*suite.Suite, error) {
	parts, err := id.Parts()
	if err != nil {
		return nil, &DiscoveryError{Identity: id, Err: err}
	}

	added := c.resolver.RegisterAll(paths)
	defer c.resolver.Unregister(added...)

	for i := len(parts); i >= 1; i-- {
		module := strings.Join(parts[:i], ".")
		if !c.importable(module) {
			continue
		}

		m, err := c.session.Import(module)
		if err != nil {
			var importErr *session.ImportError
			if errors.As(err, &importErr) {
				return suite.New("", suite.NewImportFailure(module, err)), nil
			}
			return nil, &DiscoveryError{Identity: id, Err: err}
		}

		s, err := selectTests(m, parts[i:])
		if err != nil {
			return nil, &DiscoveryError{Identity: id, Err: err}
		}
		return suite.New("", s), nil
	}
	return nil, &DiscoveryError{Identity: id, Err: ErrNotFound}
}

func (c *Collector) importable(module string) bool {
	if _, ok := c.session.Modules.Get(module); ok {
		return true
	}
	_, ok := c.session.Locate(module)
	return ok
}

// selectTests narrows a module to the class and method named by rest.
func selectTests(m *session.Module, rest []string) (*suite.Suite, error) {
	switch len(rest) {
	case 0:
		return moduleSuite(m), nil
	case 1, 2:
		cls, ok := m.Class(rest[0])
		if !ok {
			return nil, fmt.Errorf("%w: %s has no test class %s", ErrNotFound, m.Name, rest[0])
		}
		if len(rest) == 1 {
			return suite.New(m.Name, classSuite(m.Name, cls)), nil
		}
		if !cls.HasMethod(rest[1]) {
			return nil, fmt.Errorf("%w: %s.%s has no test method %s", ErrNotFound, m.Name, cls.Name, rest[1])
		}
		t := suite.Test{Module: m.Name, Class: cls.Name, Method: rest[1]}
		return suite.New(m.Name, suite.New(cls.Name, suite.NewCase(t))), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(rest, "."))
}

// moduleSuite lists the module's classes, and each class's methods, sorted
// by name like unittest.TestLoader.
func moduleSuite(m *session.Module) *suite.Suite {
	classes := make([]session.Class, len(m.Classes))
	copy(classes, m.Classes)
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	s := suite.New(m.Name)
	s.Module = m.Name
	for _, cls := range classes {
		if len(cls.Methods) == 0 {
			continue
		}
		s.Add(classSuite(m.Name, cls))
	}
	return s
}

func classSuite(module string, cls session.Class) *suite.Suite {
	methods := make([]string, len(cls.Methods))
	copy(methods, cls.Methods)
	sort.Strings(methods)

	s := suite.New(cls.Name)
	s.Module = module
	for _, method := range methods {
		s.Add(suite.NewCase(suite.Test{Module: module, Class: cls.Name, Method: method}))
	}
	return s
}

// ModuleName derives the dotted import name of a .py file by climbing parent
// directories while they are packages.
func ModuleName(file string) (string, error) {
	if filepath.Ext(file) != ".py" {
		return "", fmt.Errorf("not a python module: %s", file)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(abs), ".py")
	if name == "__init__" {
		name = ""
	}
	dir := filepath.Dir(abs)
	for {
		if _, err := os.Stat(filepath.Join(dir, session.PackageMarker)); err != nil {
			break
		}
		name = joinName(filepath.Base(dir), name)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if name == "" {
		return "", fmt.Errorf("cannot derive module name: %s", file)
	}
	return name, nil
}

func joinName(pkg, name string) string {
	switch {
	case pkg == "":
		return name
	case name == "":
		return pkg
	}
	return pkg + "." + name
}
