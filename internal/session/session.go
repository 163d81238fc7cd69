// Package session models the interpreter state that test runs share: the
// import path and the module cache. Both are owned by a Session value that is
// passed to whoever needs them, so tests can use an isolated instance.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrModuleNotFound is returned when no import path entry provides a module.
var ErrModuleNotFound = errors.New("module not found")

// PackageMarker is the file that makes a directory an importable package.
const PackageMarker = "__init__.py"

// Session bundles the process-wide import state of one host session.
type Session struct {
	Path    *ImportPath
	Modules *ModuleCache
}

// New creates a session with an empty module cache.
func New(loader Loader, entries ...string) *Session {
	return &Session{
		Path:    NewImportPath(entries...),
		Modules: NewModuleCache(loader),
	}
}

// Locate finds the file for a dotted module name by searching the import
// path in order. Packages resolve to their __init__.py.
func (s *Session) Locate(name string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
	for _, entry := range s.Path.entries {
		candidates := []string{
			filepath.Join(entry, rel+".py"),
			filepath.Join(entry, rel, PackageMarker),
		}
		for _, c := range candidates {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return c, true
			}
		}
	}
	return "", false
}

// Import resolves name against the import path and loads it through the
// module cache. Already-cached modules are returned without a path search.
func (s *Session) Import(name string) (*Module, error) {
	if m, ok := s.Modules.Get(name); ok {
		return m, nil
	}
	file, ok := s.Locate(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return s.Modules.ImportFile(name, file)
}
