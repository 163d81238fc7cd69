// Package pyscan loads Python unittest modules without an interpreter. It
// finds TestCase subclasses and their test methods, and reports the source
// problems that would make the real import raise.
package pyscan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// DefaultMethodPrefix matches unittest.TestLoader.testMethodPrefix.
const DefaultMethodPrefix = "test"

// ErrRaisesOnImport is returned for modules with a top-level raise statement.
var ErrRaisesOnImport = errors.New("module raises at import time")

var (
	classRe      = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(?:\((.*)\))?\s*:`)
	defRe        = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	raiseRe      = regexp.MustCompile(`^raise\b`)
	skipRe       = regexp.MustCompile(`^raise\s+(?:unittest\.(?:case\.)?)?SkipTest\b`)
	fromImportRe = regexp.MustCompile(`^from\s+(\.*[\w.]*)\s+import\s+(.+)$`)
	importRe     = regexp.MustCompile(`^import\s+(.+)$`)
)

// Loader implements session.Loader by reading and scanning source files.
type Loader struct {
	MethodPrefix string

	// Import loads the module of an imported base class. Nil leaves imported
	// bases unresolved.
	Import func(name string) (*session.Module, error)

	loading map[string]bool
}

// NewLoader creates a loader using the unittest default method prefix.
func NewLoader() *Loader {
	return &Loader{MethodPrefix: DefaultMethodPrefix}
}

// Bind resolves imported base classes through s. The loader must be the one
// backing s's module cache.
func (l *Loader) Bind(s *session.Session) *Loader {
	l.Import = s.Import
	return l
}

// Load implements session.Loader
func (l *Loader) Load(name, file string) (*session.Module, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	if l.loading == nil {
		l.loading = make(map[string]bool)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	pkg := packageOf(name, filepath.Base(file) == session.PackageMarker)
	m, err := l.scan(name, pkg, src)
	if err != nil {
		return nil, err
	}
	m.Name = name
	m.File = file
	return m, nil
}

// Scan parses module source into its test classes. Imported bases are
// resolved relative to the top level.
func (l *Loader) Scan(src []byte) (*session.Module, error) {
	return l.scan("", "", src)
}

type classInfo struct {
	class session.Class
	bases []string
}

// importRef is what a top-level import binds a local name to: a module, or
// an attribute of one.
type importRef struct {
	module string
	attr   string
}

func (l *Loader) scan(name, pkg string, src []byte) (*session.Module, error) {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(src) {
		return nil, &SyntaxError{Line: firstInvalidLine(src), Msg: "source is not valid UTF-8"}
	}

	lines, err := splitLogical(src)
	if err != nil {
		return nil, err
	}
	if err := checkIndentation(lines); err != nil {
		return nil, err
	}

	prefix := l.MethodPrefix
	if prefix == "" {
		prefix = DefaultMethodPrefix
	}

	var classes []*classInfo
	imports := make(map[string]importRef)
	var current *classInfo
	bodyIndent := -1

	for _, ln := range lines {
		if ln.indent == 0 {
			current = nil
			bodyIndent = -1

			if skipRe.MatchString(ln.text) {
				return nil, fmt.Errorf("%w (line %d): %s", suite.ErrSkipModule, ln.line, ln.text)
			}
			if raiseRe.MatchString(ln.text) {
				return nil, fmt.Errorf("%w (line %d): %s", ErrRaisesOnImport, ln.line, ln.text)
			}
			if match := classRe.FindStringSubmatch(ln.text); match != nil {
				current = &classInfo{
					class: session.Class{Name: match[1], Line: ln.line},
					bases: parseBases(match[2]),
				}
				classes = append(classes, current)
				continue
			}
			parseImport(ln.text, pkg, imports)
			continue
		}

		if current == nil {
			continue
		}
		if bodyIndent == -1 {
			bodyIndent = ln.indent
		}
		if ln.indent != bodyIndent {
			continue
		}
		if match := defRe.FindStringSubmatch(ln.text); match != nil && strings.HasPrefix(match[1], prefix) {
			current.class.Methods = appendUnique(current.class.Methods, match[1])
		}
	}

	return l.resolve(name, classes, imports)
}

// resolve decides which classes are test cases. Test methods are inherited
// from bases defined earlier in the module or in imported modules. A class
// whose bases cannot be resolved is kept when it defines test methods.
func (l *Loader) resolve(name string, classes []*classInfo, imports map[string]importRef) (*session.Module, error) {
	type known struct {
		methods []string
		isTest  bool
	}
	local := make(map[string]known)
	m := &session.Module{}

	for _, ci := range classes {
		isTest := false
		var unresolved []string
		var inherited []string
		for _, b := range ci.bases {
			if k, ok := local[b]; ok {
				isTest = isTest || k.isTest
				inherited = append(inherited, k.methods...)
				continue
			}
			if b == "object" {
				continue
			}
			if strings.HasSuffix(lastSegment(b), "TestCase") {
				isTest = true
				continue
			}
			cls, test, found, err := l.lookupBase(b, imports)
			if err != nil {
				return nil, err
			}
			if !found {
				unresolved = append(unresolved, b)
				continue
			}
			isTest = isTest || test
			inherited = append(inherited, cls.Methods...)
		}

		methods := make([]string, 0, len(inherited)+len(ci.class.Methods))
		for _, n := range inherited {
			methods = appendUnique(methods, n)
		}
		for _, n := range ci.class.Methods {
			methods = appendUnique(methods, n)
		}
		ci.class.Methods = methods

		if !isTest && len(unresolved) > 0 {
			if len(ci.class.Methods) > 0 {
				log.Warn().Str("module", name).Str("class", ci.class.Name).Strs("bases", unresolved).
					Msg("cannot resolve base class, assuming a TestCase subclass")
				isTest = true
			} else {
				log.Warn().Str("module", name).Str("class", ci.class.Name).Strs("bases", unresolved).
					Msg("cannot resolve base class, class has no test methods and is skipped")
			}
		}

		local[ci.class.Name] = known{methods: methods, isTest: isTest}
		if isTest {
			m.Classes = append(m.Classes, ci.class)
		} else {
			m.Helpers = append(m.Helpers, ci.class)
		}
	}
	return m, nil
}

// lookupBase finds an imported base class. found is false when the name is
// not bound by an import or its module cannot be located. A located module
// that fails to import fails this one too.
func (l *Loader) lookupBase(base string, imports map[string]importRef) (cls session.Class, isTest, found bool, err error) {
	var module, attr string
	if head, rest, dotted := strings.Cut(base, "."); dotted {
		ref, ok := imports[head]
		if !ok {
			return cls, false, false, nil
		}
		full := ref.module
		if ref.attr != "" {
			full += "." + ref.attr
		}
		if idx := strings.LastIndex(rest, "."); idx != -1 {
			full += "." + rest[:idx]
		}
		module, attr = full, lastSegment(rest)
	} else {
		ref, ok := imports[base]
		if !ok || ref.attr == "" {
			return cls, false, false, nil
		}
		module, attr = ref.module, ref.attr
	}

	if l.Import == nil || module == "" || l.loading[module] {
		return cls, false, false, nil
	}
	imported, err := l.Import(module)
	if err != nil {
		if errors.Is(err, session.ErrModuleNotFound) {
			return cls, false, false, nil
		}
		return cls, false, false, fmt.Errorf("import of base class %s failed: %w", base, err)
	}
	if c, ok := imported.Class(attr); ok {
		return c, true, true, nil
	}
	for _, c := range imported.Helpers {
		if c.Name == attr {
			return c, false, true, nil
		}
	}
	return cls, false, false, nil
}

// parseImport records the names a top-level import statement binds.
func parseImport(text, pkg string, imports map[string]importRef) {
	if match := fromImportRe.FindStringSubmatch(text); match != nil {
		module := absoluteModule(match[1], pkg)
		names := strings.Trim(strings.TrimSpace(match[2]), "()")
		for _, part := range strings.Split(names, ",") {
			fields := strings.Fields(part)
			switch {
			case len(fields) == 1 && fields[0] != "*":
				imports[fields[0]] = importRef{module: module, attr: fields[0]}
			case len(fields) == 3 && fields[1] == "as":
				imports[fields[2]] = importRef{module: module, attr: fields[0]}
			}
		}
		return
	}
	if match := importRe.FindStringSubmatch(text); match != nil {
		for _, part := range strings.Split(match[1], ",") {
			fields := strings.Fields(part)
			switch {
			case len(fields) == 1:
				// import a.b binds a
				head, _, _ := strings.Cut(fields[0], ".")
				imports[head] = importRef{module: head}
			case len(fields) == 3 && fields[1] == "as":
				imports[fields[2]] = importRef{module: fields[0]}
			}
		}
	}
}

// absoluteModule resolves a possibly relative module name against pkg.
// Unresolvable relative names return "".
func absoluteModule(module, pkg string) string {
	dots := len(module) - len(strings.TrimLeft(module, "."))
	if dots == 0 {
		return module
	}
	if pkg == "" {
		return ""
	}
	parts := strings.Split(pkg, ".")
	if dots-1 >= len(parts) {
		return ""
	}
	base := strings.Join(parts[:len(parts)-(dots-1)], ".")
	if rest := module[dots:]; rest != "" {
		return base + "." + rest
	}
	return base
}

// packageOf returns the package a module's relative imports resolve against.
func packageOf(name string, isPackage bool) string {
	if isPackage {
		return name
	}
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return name[:idx]
	}
	return ""
}

// parseBases splits a class argument list, dropping keyword arguments such
// as metaclass=...
func parseBases(args string) []string {
	var bases []string
	depth := 0
	startIdx := 0
	flush := func(part string) {
		part = strings.TrimSpace(part)
		if part == "" || strings.Contains(part, "=") || strings.HasPrefix(part, "*") {
			return
		}
		bases = append(bases, part)
	}
	for i, r := range args {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush(args[startIdx:i])
				startIdx = i + 1
			}
		}
	}
	flush(args[startIdx:])
	return bases
}

func lastSegment(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx != -1 {
		return dotted[idx+1:]
	}
	return dotted
}

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}

func firstInvalidLine(src []byte) int {
	line := 1
	for len(src) > 0 {
		r, size := utf8.DecodeRune(src)
		if r == utf8.RuneError && size <= 1 {
			return line
		}
		if r == '\n' {
			line++
		}
		src = src[size:]
	}
	return line
}
