// Package rollback forces fresh imports between run cycles. It snapshots the
// module cache before a cycle and evicts everything imported after it, so
// edited test code is re-read on the next cycle instead of served from cache.
package rollback

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/session"
)

// Token is the set of module names cached at snapshot time.
type Token struct {
	names map[string]struct{}
}

// Has reports whether name was cached when the token was taken.
func (t Token) Has(name string) bool {
	_, ok := t.names[name]
	return ok
}

// Len returns the number of module names in the snapshot.
func (t Token) Len() int {
	return len(t.names)
}

// Tracker snapshots and evicts entries of a module cache.
type Tracker struct {
	cache   *session.ModuleCache
	pending *Token
}

// NewTracker creates a tracker over cache.
func NewTracker(cache *session.ModuleCache) *Tracker {
	return &Tracker{cache: cache}
}

// Snapshot captures the names currently cached.
func (t *Tracker) Snapshot() Token {
	names := make(map[string]struct{}, t.cache.Len())
	for _, n := range t.cache.Names() {
		names[n] = struct{}{}
	}
	return Token{names: names}
}

// Evict deletes every cached module that is not in the token and returns the
// evicted names, sorted. Modules present at snapshot time are never touched.
func (t *Tracker) Evict(token Token) []string {
	var evicted []string
	for _, name := range t.cache.Names() {
		if !token.Has(name) {
			t.cache.Delete(name)
			evicted = append(evicted, name)
		}
	}
	sort.Strings(evicted)
	if len(evicted) > 0 {
		log.Debug().Strs("modules", evicted).Msg("rollback evicted modules")
	}
	return evicted
}

// Rotate closes the previous cycle and opens a new one: it evicts with the
// previous token (nothing on the first call) and takes a fresh snapshot.
// Call it exactly once before each cycle's discovery.
func (t *Tracker) Rotate() []string {
	var evicted []string
	if t.pending != nil {
		evicted = t.Evict(*t.pending)
	}
	token := t.Snapshot()
	t.pending = &token
	return evicted
}
