// Package functable assigns stable small integer keys to function bodies.
package functable

import (
	"fmt"
	"sync"
)

// Key identifies one (function, body index) pair for the life of the process.
// Keys are issued sequentially starting at 1.
type Key uint32

// Location is a source position.
type Location struct {
	File string
	Line int
}

// String formats the location as file:line.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Entry is the display metadata recorded for a key.
type Entry struct {
	Key  Key
	Name string
	Body int
	Location
}

type identity struct {
	fn   any
	body int
}

// Table deduplicates (function, body) pairs into keys.
type Table struct {
	mu      sync.RWMutex
	keys    map[identity]Key
	entries []Entry
}

// New creates an empty function table.
func New() *Table {
	return &Table{keys: make(map[identity]Key)}
}

// Resolve returns the key for (fn, body), allocating the next key and recording
// name and loc on first sight. fn must be comparable, typically a pointer.
// The boolean result reports whether the key was newly created.
func (t *Table) Resolve(fn any, name string, body int, loc Location) (Key, bool) {
	id := identity{fn: fn, body: body}

	t.mu.RLock()
	key, ok := t.keys[id]
	t.mu.RUnlock()
	if ok {
		return key, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if key, ok := t.keys[id]; ok {
		return key, false
	}

	key = Key(len(t.entries) + 1)
	t.keys[id] = key
	t.entries = append(t.entries, Entry{Key: key, Name: name, Body: body, Location: loc})
	return key, true
}

// Lookup returns the metadata for a key. It panics if the key was never issued.
func (t *Table) Lookup(key Key) Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if key == 0 || int(key) > len(t.entries) {
		panic(fmt.Sprintf("functable: lookup of unissued key %d", key))
	}
	return t.entries[key-1]
}

// Len returns the number of issued keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a copy of all entries in key order.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
