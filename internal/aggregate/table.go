package aggregate

import (
	"sync"

	"github.com/aeppert/bro-plugin-instrumentation/internal/counters"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Table maps function keys to their aggregate rows. Rows are never removed.
type Table struct {
	mu    sync.Mutex
	rows  map[functable.Key]*Row
	order []functable.Key
	total uint64
}

// NewTable creates an empty aggregate table.
func NewTable() *Table {
	return &Table{rows: make(map[functable.Key]*Row)}
}

// row returns the row for key, creating it with the display metadata on first use.
// Caller must hold t.mu.
func (t *Table) row(key functable.Key, name, location string) *Row {
	r, ok := t.rows[key]
	if !ok {
		r = &Row{Name: name, Location: location}
		t.rows[key] = r
		t.order = append(t.order, key)
	}
	return r
}

// Merge accumulates one measured execution of key.
func (t *Table) Merge(key functable.Key, name, location string, delta counters.Snapshot, clamped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.row(key, name, location).Merge(delta, clamped)
	t.total = safe.AddUint64(t.total, 1)
}

// Fail records an execution of key that ended in a recoverable failure.
func (t *Table) Fail(key functable.Key, name, location string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(key, name, location)
	r.Failures = safe.AddUint64(r.Failures, 1)
}

// Get returns a copy of the row for key.
func (t *Table) Get(key functable.Key) (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows[key]
	if !ok {
		return Row{}, false
	}
	return *r, true
}

// Keys returns every key with a row, in creation order.
func (t *Table) Keys() []functable.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]functable.Key, len(t.order))
	copy(out, t.order)
	return out
}

// Rows returns copies of every row, in creation order.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.rows[k])
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Total returns the number of executions merged across all rows.
func (t *Table) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
