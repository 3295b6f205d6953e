package chain

import (
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// Tracker follows the active call nesting of one host execution thread.
//
// Every key entered since the tracker was last idle is appended to the current
// path; when the outermost call exits the whole path is recorded in the registry
// once. Recursive and nested calls therefore fold into their root path.
//
// Tracker is not safe for concurrent use.
type Tracker struct {
	registry *Registry
	maxLen   int

	stack     []functable.Key
	path      []functable.Key
	truncated bool

	enters uint64
	exits  uint64
}

// NewTracker creates a tracker recording into registry. maxLen caps the
// recorded path length; zero means unlimited.
func NewTracker(registry *Registry, maxLen int) *Tracker {
	return &Tracker{registry: registry, maxLen: maxLen}
}

// Enter pushes key onto the active stack.
func (t *Tracker) Enter(key functable.Key) {
	t.enters++
	t.stack = append(t.stack, key)
	if t.maxLen > 0 && len(t.path) >= t.maxLen {
		t.truncated = true
		return
	}
	t.path = append(t.path, key)
}

// Exit pops the active stack. When the stack becomes empty the completed path
// is recorded. Exit without a matching Enter panics.
func (t *Tracker) Exit() {
	if len(t.stack) == 0 {
		panic("chain: exit without matching enter")
	}
	t.exits++
	t.stack = t.stack[:len(t.stack)-1]
	if len(t.stack) > 0 {
		return
	}

	t.registry.Record(t.path, t.truncated)
	t.path = t.path[:0]
	t.truncated = false
}

// Depth returns the current nesting depth.
func (t *Tracker) Depth() int {
	return len(t.stack)
}

// Balance returns the number of Enter and Exit calls seen so far.
func (t *Tracker) Balance() (enters, exits uint64) {
	return t.enters, t.exits
}
