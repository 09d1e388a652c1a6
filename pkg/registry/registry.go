// Package registry provides a generic copy-on-write keyed registry. Reads
// load an immutable snapshot; writers build a new map and publish it with a
// single pointer swap, so readers observe either the pre- or post-mutation
// state, never a half-built one.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// SnapshotRegistry holds named items of type T.
type SnapshotRegistry[T any] struct {
	snapshot atomic.Pointer[map[string]T]
	writeMu  sync.Mutex
}

// New creates an empty registry.
func New[T any]() *SnapshotRegistry[T] {
	r := &SnapshotRegistry[T]{}
	empty := make(map[string]T)
	r.snapshot.Store(&empty)
	return r
}

// Get returns the item registered under name.
func (r *SnapshotRegistry[T]) Get(name string) (T, bool) {
	snapshot := *r.snapshot.Load()
	item, ok := snapshot[name]
	return item, ok
}

// Snapshot returns the current item map. Callers must not mutate it.
func (r *SnapshotRegistry[T]) Snapshot() map[string]T {
	return *r.snapshot.Load()
}

// Names returns the registered names in sorted order.
func (r *SnapshotRegistry[T]) Names() []string {
	snapshot := *r.snapshot.Load()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered items.
func (r *SnapshotRegistry[T]) Len() int {
	return len(*r.snapshot.Load())
}

// Register adds an item under name, failing if the name is taken.
func (r *SnapshotRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.snapshot.Load()
	if _, exists := current[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}

	next := cloneWith(current, name, item)
	r.snapshot.Store(&next)
	return nil
}

// Put adds or replaces an item under name.
func (r *SnapshotRegistry[T]) Put(name string, item T) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := cloneWith(*r.snapshot.Load(), name, item)
	r.snapshot.Store(&next)
	return nil
}

// Remove deletes the item registered under name.
func (r *SnapshotRegistry[T]) Remove(name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.snapshot.Load()
	if _, exists := current[name]; !exists {
		return fmt.Errorf("registry: %q not found", name)
	}

	next := make(map[string]T, len(current)-1)
	for k, v := range current {
		if k != name {
			next[k] = v
		}
	}
	r.snapshot.Store(&next)
	return nil
}

// Replace swaps the whole item map atomically. The registry takes ownership
// of items; the caller must not mutate it afterwards.
func (r *SnapshotRegistry[T]) Replace(items map[string]T) {
	if items == nil {
		items = make(map[string]T)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.snapshot.Store(&items)
}

func cloneWith[T any](current map[string]T, name string, item T) map[string]T {
	next := make(map[string]T, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = item
	return next
}
