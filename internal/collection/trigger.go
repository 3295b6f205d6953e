// Package collection decides when periodic snapshots are written and owns the
// output streams they are written to.
package collection

// NoiseFloor is the smallest time threshold, in seconds, that arms the time trigger.
const NoiseFloor = 0.001

// Trigger fires on host time-update notifications, either every Count
// notifications or whenever more than Timer seconds of host time elapsed since
// it last fired on time. The count check runs first; at most one firing per
// notification.
//
// Trigger is not safe for concurrent use.
type Trigger struct {
	timer     float64
	count     uint64
	seen      uint64
	lastFired float64
}

// SetTimer sets the time threshold in seconds. Values at or below NoiseFloor disarm it.
func (t *Trigger) SetTimer(seconds float64) {
	t.timer = seconds
}

// SetCount sets the notification count threshold. Zero disarms it.
func (t *Trigger) SetCount(n uint64) {
	t.count = n
}

// Armed reports whether either threshold is active.
func (t *Trigger) Armed() bool {
	return t.count > 0 || t.timer > NoiseFloor
}

// Notify records a notification carrying the host's current time and reports
// whether a snapshot should be written.
func (t *Trigger) Notify(now float64) bool {
	t.seen++

	if t.count > 0 && t.seen >= t.count {
		t.seen = 0
		return true
	}
	if t.timer > NoiseFloor && now-t.lastFired > t.timer {
		t.lastFired = now
		return true
	}
	return false
}
