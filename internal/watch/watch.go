// Package watch triggers a new run cycle when Python sources change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce groups the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// SkipDir reports whether a directory must not be watched. Hidden
	// directories and __pycache__ are always skipped.
	SkipDir func(path, name string) bool
	// Match reports whether a changed file triggers a cycle. Defaults to *.py.
	Match func(path string) bool
}

// Watcher watches directory trees for source changes.
type Watcher struct {
	fs   *fsnotify.Watcher
	opts Options

	mu   sync.Mutex
	dirs map[string]struct{}
}

// New watches every directory under roots. Missing roots are skipped.
func New(roots []string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Match == nil {
		opts.Match = IsPython
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, opts: opts, dirs: make(map[string]struct{})}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			log.Warn().Str("path", root).Err(err).Msg("not watching path")
		}
	}
	if len(w.Dirs()) == 0 {
		fw.Close()
		return nil, errors.New("nothing to watch")
	}
	return w, nil
}

// IsPython matches .py files.
func IsPython(path string) bool {
	return strings.HasSuffix(path, ".py")
}

// Dirs returns the watched directories, sorted.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) skip(path, name string) bool {
	if name == "__pycache__" || (strings.HasPrefix(name, ".") && name != ".") {
		return true
	}
	return w.opts.SkipDir != nil && w.opts.SkipDir(path, name)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skip(path, d.Name()) {
			return filepath.SkipDir
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.dirs[path]; ok {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return err
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

// Run blocks until ctx is done, calling onChange with the sorted set of
// changed files once events have been quiet for the debounce interval.
// onChange runs on the watch goroutine, so cycles never overlap.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New package directories are watched as they appear
				if d, ok := w.newDir(event.Name); ok {
					if err := w.addTree(d); err != nil {
						log.Warn().Str("path", d).Err(err).Msg("not watching new directory")
					}
					continue
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if w.forget(event.Name) {
					continue
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.opts.Match(event.Name) {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("source changed")
			pending[event.Name] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			onChange(changed)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) newDir(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	if w.skip(path, filepath.Base(path)) {
		return "", false
	}
	return path, true
}

// forget drops a removed directory. fsnotify already stopped watching it.
func (w *Watcher) forget(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[path]; !ok {
		return false
	}
	delete(w.dirs, path)
	return true
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
