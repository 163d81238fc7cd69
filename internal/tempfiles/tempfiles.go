// Package tempfiles hands out unique file names inside the run's scratch
// directory and removes them afterwards.
package tempfiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Registry names and tracks scratch files under one directory.
type Registry struct {
	dir   string
	files []string
	taken map[string]bool
}

// New creates a registry rooted at dir. The directory is created lazily.
func New(dir string) *Registry {
	return &Registry{dir: dir, taken: make(map[string]bool)}
}

// Dir returns the scratch directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Name returns an unused path for fileName inside the scratch directory and
// registers it for cleanup. The file itself is not created. On collision a
// counter is inserted before the extension: out.ma, out1.ma, out2.ma...
func (r *Registry) Name(fileName string) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	path := filepath.Join(r.dir, base+ext)
	for count := 1; r.exists(path); count++ {
		path = filepath.Join(r.dir, fmt.Sprintf("%s%d%s", base, count, ext))
	}

	if dir := filepath.Dir(path); dir != r.dir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	r.taken[path] = true
	r.files = append(r.files, path)
	return path, nil
}

func (r *Registry) exists(path string) bool {
	if r.taken[path] {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// Files returns the registered paths in the order they were handed out.
func (r *Registry) Files() []string {
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}

// Cleanup deletes every registered file that exists and forgets them.
func (r *Registry) Cleanup() error {
	var errs []error
	for _, f := range r.files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	log.Debug().Int("files", len(r.files)).Str("dir", r.dir).Msg("temp files cleaned up")
	r.files = nil
	r.taken = make(map[string]bool)
	return errors.Join(errs...)
}

// RemoveAll deletes the scratch directory with everything in it.
func (r *Registry) RemoveAll() error {
	r.files = nil
	r.taken = make(map[string]bool)
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to remove temp dir %s: %w", r.dir, err)
	}
	log.Debug().Str("dir", r.dir).Msg("temp dir removed")
	return nil
}
