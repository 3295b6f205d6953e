package safe

import (
	"math"
)

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to math.MaxInt64 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// SubUint64 returns a-b, clamping to zero when b > a.
// Returns the difference and a boolean indicating whether clamping occurred.
func SubUint64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, true
	}
	return a - b, false
}

// SubFloat64 returns a-b, clamping to zero when the result would be negative.
// NaN inputs are treated as a clamped zero.
func SubFloat64(a, b float64) (float64, bool) {
	d := a - b
	if d < 0 || math.IsNaN(d) {
		return 0, true
	}
	return d, false
}

// AddUint64 returns a+b, saturating at math.MaxUint64.
func AddUint64(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
