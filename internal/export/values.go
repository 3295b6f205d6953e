// Package export publishes aggregates outside the process: an operator-managed
// key/value table, OTLP JSON metrics and pprof profiles.
package export

import (
	"sort"
	"sync"
)

// Values is the set of exported string key/value pairs.
type Values struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewValues creates an empty export table.
func NewValues() *Values {
	return &Values{m: make(map[string]string)}
}

// Set adds or replaces key.
func (v *Values) Set(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[key] = value
}

// Delete removes key. Removing an absent key is a no-op.
func (v *Values) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.m, key)
}

// Get returns the value of key.
func (v *Values) Get(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.m[key]
	return val, ok
}

// Keys returns the exported keys in sorted order.
func (v *Values) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the table.
func (v *Values) Snapshot() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}
