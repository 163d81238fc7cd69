package rollback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickchristie/govner/mayatdd/internal/session"
)

// bodyLoader counts how many times each module body is "executed".
type bodyLoader struct {
	executed map[string]int
}

func (l *bodyLoader) Load(name, file string) (*session.Module, error) {
	l.executed[name]++
	return &session.Module{Name: name, File: file}, nil
}

func newSession(t *testing.T, modules ...string) (*session.Session, *bodyLoader) {
	t.Helper()
	root := t.TempDir()
	for _, m := range modules {
		require.NoError(t, os.WriteFile(filepath.Join(root, m+".py"), []byte("print('loaded')\n"), 0644))
	}
	loader := &bodyLoader{executed: make(map[string]int)}
	return session.New(loader, root), loader
}

func TestEvict_RemovesOnlyModulesImportedAfterSnapshot(t *testing.T) {
	s, loader := newSession(t, "test_first", "test_second")
	tracker := NewTracker(s.Modules)

	_, err := s.Import("test_first")
	require.NoError(t, err)

	token := tracker.Snapshot()
	assert.True(t, token.Has("test_first"))

	_, err = s.Import("test_second")
	require.NoError(t, err)

	evicted := tracker.Evict(token)
	assert.Equal(t, []string{"test_second"}, evicted)

	_, ok := s.Modules.Get("test_first")
	assert.True(t, ok, "module present at snapshot time must survive")
	_, ok = s.Modules.Get("test_second")
	assert.False(t, ok)

	// Re-importing the evicted module executes its body again
	_, err = s.Import("test_second")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.executed["test_second"])
	assert.Equal(t, 1, loader.executed["test_first"])
}

func TestEvict_EmptyWhenNothingNew(t *testing.T) {
	s, _ := newSession(t, "test_first")
	tracker := NewTracker(s.Modules)

	_, err := s.Import("test_first")
	require.NoError(t, err)

	assert.Empty(t, tracker.Evict(tracker.Snapshot()))
	assert.Equal(t, 1, s.Modules.Len())
}

func TestRotate_PairsCycles(t *testing.T) {
	s, loader := newSession(t, "test_a", "test_b")
	tracker := NewTracker(s.Modules)

	// First cycle: nothing to evict
	assert.Empty(t, tracker.Rotate())
	_, err := s.Import("test_a")
	require.NoError(t, err)

	// Second cycle evicts what the first cycle imported
	assert.Equal(t, []string{"test_a"}, tracker.Rotate())
	_, err = s.Import("test_a")
	require.NoError(t, err)
	_, err = s.Import("test_b")
	require.NoError(t, err)

	assert.Equal(t, []string{"test_a", "test_b"}, tracker.Rotate())
	assert.Equal(t, 2, loader.executed["test_a"])
	assert.Equal(t, 0, s.Modules.Len())
}
