//go:build unix

package counters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUSource_Read(t *testing.T) {
	src := NewCPUSource()
	var a, b Snapshot
	require.NoError(t, src.Read(&a))

	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i % 7
	}
	_ = x

	require.NoError(t, src.Read(&b))
	assert.GreaterOrEqual(t, b.CPUNanos, a.CPUNanos)
	assert.Equal(t, "cpu", src.Name())
}
