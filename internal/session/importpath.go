package session

import (
	"os"
	"strings"
)

// ImportPath is the ordered list of roots that module names resolve against.
// It plays the part of the interpreter's sys.path and is exported to the
// host as PYTHONPATH.
type ImportPath struct {
	entries []string
}

// NewImportPath creates an import path with the given entries, in order.
func NewImportPath(entries ...string) *ImportPath {
	p := &ImportPath{}
	p.entries = append(p.entries, entries...)
	return p
}

// Entries returns a copy of the entries.
func (p *ImportPath) Entries() []string {
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of entries.
func (p *ImportPath) Len() int {
	return len(p.entries)
}

// Contains reports whether entry is present.
func (p *ImportPath) Contains(entry string) bool {
	for _, e := range p.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// Prepend inserts entry at the front, even if it is already present.
func (p *ImportPath) Prepend(entry string) {
	p.entries = append([]string{entry}, p.entries...)
}

// Remove deletes the first occurrence of entry and reports whether one was found.
func (p *ImportPath) Remove(entry string) bool {
	for i, e := range p.entries {
		if e == entry {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Env renders the entries as a PYTHONPATH value.
func (p *ImportPath) Env() string {
	return strings.Join(p.entries, string(os.PathListSeparator))
}
