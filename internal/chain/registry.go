// Package chain tracks nested call paths and folds completed root-level paths
// into a weighted registry that renders as a DOT call graph.
package chain

import (
	"encoding/binary"
	"slices"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// Chain is one completed root-to-completion call path and how often it occurred.
type Chain struct {
	Keys      []functable.Key
	Count     uint64
	Truncated bool
}

// Hash returns the xxh3 hash of the chain's key sequence.
func (c Chain) Hash() uint64 {
	return hashPath(c.Keys, c.Truncated)
}

// Registry maps distinct call paths to their occurrence counts.
// Entries are never removed.
type Registry struct {
	mu     sync.Mutex
	byHash map[uint64][]int
	chains []Chain
}

// NewRegistry creates an empty chain registry.
func NewRegistry() *Registry {
	return &Registry{byHash: make(map[uint64][]int)}
}

// Record increments the count of path, creating the entry on first sight.
// path is copied.
func (r *Registry) Record(path []functable.Key, truncated bool) {
	h := hashPath(path, truncated)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, idx := range r.byHash[h] {
		c := &r.chains[idx]
		if c.Truncated == truncated && slices.Equal(c.Keys, path) {
			c.Count++
			return
		}
	}

	r.byHash[h] = append(r.byHash[h], len(r.chains))
	r.chains = append(r.chains, Chain{
		Keys:      slices.Clone(path),
		Count:     1,
		Truncated: truncated,
	})
}

// List returns copies of every chain in first-seen order.
func (r *Registry) List() []Chain {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chain, len(r.chains))
	for i, c := range r.chains {
		out[i] = Chain{Keys: slices.Clone(c.Keys), Count: c.Count, Truncated: c.Truncated}
	}
	return out
}

// Len returns the number of distinct chains.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chains)
}

func hashPath(path []functable.Key, truncated bool) uint64 {
	buf := make([]byte, 4*len(path)+1)
	for i, k := range path {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(k))
	}
	if truncated {
		buf[len(buf)-1] = 1
	}
	return xxh3.Hash(buf)
}
