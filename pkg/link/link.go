// Package link provides the one-shot publication cell shared by every graph
// entity that has dependencies.
//
// A [Link] moves through two phases. During graph build it holds the raw,
// unresolved dependency list, which exactly one linking pass may take. That
// pass publishes the resolved table with [Link.SetResolved]; from then on the
// table is immutable and any number of goroutines may read it without locks.
//
//	l := link.New[string, *Package](raw)
//	if deps, ok := l.TakeRaw(); ok {
//	    resolved := resolveAll(deps)
//	    if err := l.SetResolved(resolved); err != nil {
//	        panic(err) // every link is resolved by exactly one pass
//	    }
//	}
//	table, ok := l.TryResolved()
package link

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAlreadyResolved is returned by [Link.SetResolved] when the resolved
// table was already published.
var ErrAlreadyResolved = errors.New("link: resolved table already published")

// Link guards the raw → resolved lifecycle of a dependency list.
// The zero value is not usable; create links with [New].
type Link[R, V any] struct {
	mu  sync.Mutex
	raw []R
	has bool

	resolved atomic.Pointer[map[string]V]
}

// New creates a link holding the raw dependency list.
func New[R, V any](raw []R) *Link[R, V] {
	return &Link[R, V]{raw: raw, has: true}
}

// TakeRaw returns the raw list on the first call and nil, false on every
// later call, regardless of which goroutine calls it.
func (l *Link[R, V]) TakeRaw() ([]R, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return nil, false
	}
	raw := l.raw
	l.raw, l.has = nil, false
	return raw, true
}

// SetResolved publishes the resolved table. Only the first call succeeds;
// the caller must not modify the map afterwards.
func (l *Link[R, V]) SetResolved(resolved map[string]V) error {
	if resolved == nil {
		resolved = map[string]V{}
	}
	if !l.resolved.CompareAndSwap(nil, &resolved) {
		return ErrAlreadyResolved
	}
	return nil
}

// TryResolved returns the published table, or nil, false if nothing has been
// published yet. It never blocks.
func (l *Link[R, V]) TryResolved() (map[string]V, bool) {
	p := l.resolved.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Get looks up one key in the published table.
func (l *Link[R, V]) Get(key string) (V, bool) {
	var zero V
	table, ok := l.TryResolved()
	if !ok {
		return zero, false
	}
	v, ok := table[key]
	return v, ok
}

// Resolved reports whether the table has been published.
func (l *Link[R, V]) Resolved() bool {
	return l.resolved.Load() != nil
}
