package session

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Resolver validates search paths and registers them on an import path.
type Resolver struct {
	path *ImportPath
}

// NewResolver creates a resolver that mutates path.
func NewResolver(path *ImportPath) *Resolver {
	return &Resolver{path: path}
}

// Register puts dir at the front of the import path if it exists on disk and
// is not already present. Returns true only when the path was added.
func (r *Resolver) Register(dir string) bool {
	if dir == "" {
		return false
	}
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if r.path.Contains(dir) {
		return false
	}
	r.path.Prepend(dir)
	log.Debug().Str("path", dir).Msg("import path registered")
	return true
}

// RegisterAll registers each path and returns the ones that were added.
func (r *Resolver) RegisterAll(dirs []string) []string {
	var added []string
	for _, d := range dirs {
		if r.Register(d) {
			added = append(added, filepath.Clean(d))
		}
	}
	return added
}

// Unregister removes paths previously returned by Register/RegisterAll.
func (r *Resolver) Unregister(dirs ...string) {
	for _, d := range dirs {
		if r.path.Remove(filepath.Clean(d)) {
			log.Debug().Str("path", d).Msg("import path unregistered")
		}
	}
}
