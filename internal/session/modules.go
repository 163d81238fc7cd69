package session

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Module is a loaded test module: its test classes and their test methods.
type Module struct {
	Name    string  // Dotted module name
	File    string  // Source file it was loaded from
	Classes []Class // TestCase subclasses in definition order
	Helpers []Class // Other classes, whose test methods subclasses inherit
}

// Class is a TestCase subclass found in a module.
type Class struct {
	Name    string
	Line    int      // 1-based line of the class statement
	Methods []string // test_* methods in definition order
}

// Root returns the import path entry the module was loaded relative to.
func (m *Module) Root() string {
	dir := filepath.Dir(m.File)
	depth := strings.Count(m.Name, ".")
	if filepath.Base(m.File) == PackageMarker {
		depth++
	}
	for i := 0; i < depth; i++ {
		dir = filepath.Dir(dir)
	}
	return dir
}

// Class returns the class with the given name.
func (m *Module) Class(name string) (Class, bool) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

// HasMethod reports whether the class defines the given test method.
func (c Class) HasMethod(name string) bool {
	for _, m := range c.Methods {
		if m == name {
			return true
		}
	}
	return false
}

// Loader reads a module file. A returned error means the module raised while
// being imported.
type Loader interface {
	Load(name, file string) (*Module, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(name, file string) (*Module, error)

// Load implements Loader
func (f LoaderFunc) Load(name, file string) (*Module, error) {
	return f(name, file)
}

// ImportError is returned when a located module fails to load.
type ImportError struct {
	Module string
	File   string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("failed to import %s (%s): %v", e.Module, e.File, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ModuleCache holds loaded modules by name. A cached module is returned
// without touching disk; once deleted, the next import reloads it.
type ModuleCache struct {
	loader  Loader
	modules map[string]*Module
}

// NewModuleCache creates an empty cache backed by loader.
func NewModuleCache(loader Loader) *ModuleCache {
	return &ModuleCache{
		loader:  loader,
		modules: make(map[string]*Module),
	}
}

// Get returns a cached module.
func (c *ModuleCache) Get(name string) (*Module, bool) {
	m, ok := c.modules[name]
	return m, ok
}

// Len returns the number of cached modules.
func (c *ModuleCache) Len() int {
	return len(c.modules)
}

// Names returns the cached module names, sorted.
func (c *ModuleCache) Names() []string {
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete evicts a module so the next import loads it again.
func (c *ModuleCache) Delete(name string) {
	delete(c.modules, name)
}

// ImportFile returns the cached module or loads it from file. Modules that
// fail to load are not cached, so the next import retries.
func (c *ModuleCache) ImportFile(name, file string) (*Module, error) {
	if m, ok := c.modules[name]; ok {
		return m, nil
	}
	m, err := c.loader.Load(name, file)
	if err != nil {
		return nil, &ImportError{Module: name, File: file, Err: err}
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.File == "" {
		m.File = file
	}
	c.modules[name] = m
	return m, nil
}
