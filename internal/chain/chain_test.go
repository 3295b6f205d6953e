package chain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

func keys(ks ...functable.Key) []functable.Key { return ks }

func TestTracker_RecordsRootPathOnce(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracker(reg, 0)

	// f calls g, then h.
	tr.Enter(1)
	tr.Enter(2)
	tr.Exit()
	tr.Enter(3)
	assert.Equal(t, 2, tr.Depth())
	tr.Exit()
	assert.Equal(t, 0, reg.Len(), "nothing is recorded until the root exits")
	tr.Exit()

	want := []Chain{{Keys: keys(1, 2, 3), Count: 1}}
	if diff := cmp.Diff(want, reg.List()); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, tr.Depth())
}

func TestTracker_RecursionFolds(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracker(reg, 0)

	const depth = 5
	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < depth; i++ {
			tr.Enter(7)
		}
		for i := 0; i < depth; i++ {
			tr.Exit()
		}
	}

	chains := reg.List()
	require.Len(t, chains, 1)
	assert.Equal(t, uint64(3), chains[0].Count)
	assert.Len(t, chains[0].Keys, depth)

	enters, exits := tr.Balance()
	assert.Equal(t, enters, exits)
	assert.Equal(t, uint64(3*depth), enters)
}

func TestTracker_DistinctShapes(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracker(reg, 0)

	run := func(ks ...functable.Key) {
		for _, k := range ks {
			tr.Enter(k)
		}
		for range ks {
			tr.Exit()
		}
	}
	run(1, 2)
	run(1, 3)
	run(1, 2)
	run(2)

	want := []Chain{
		{Keys: keys(1, 2), Count: 2},
		{Keys: keys(1, 3), Count: 1},
		{Keys: keys(2), Count: 1},
	}
	if diff := cmp.Diff(want, reg.List()); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_MaxLengthTruncates(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracker(reg, 2)

	for _, k := range keys(1, 2, 3, 4) {
		tr.Enter(k)
	}
	for i := 0; i < 4; i++ {
		tr.Exit()
	}
	tr.Enter(1)
	tr.Enter(2)
	tr.Exit()
	tr.Exit()

	want := []Chain{
		{Keys: keys(1, 2), Count: 1, Truncated: true},
		{Keys: keys(1, 2), Count: 1},
	}
	if diff := cmp.Diff(want, reg.List()); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_ExitWithoutEnterPanics(t *testing.T) {
	tr := NewTracker(NewRegistry(), 0)
	assert.Panics(t, tr.Exit)
}

func TestRegistry_ListIsACopy(t *testing.T) {
	reg := NewRegistry()
	path := keys(1, 2)
	reg.Record(path, false)
	path[0] = 9

	list := reg.List()
	list[0].Keys[1] = 8
	assert.Equal(t, keys(1, 2), reg.List()[0].Keys)
	assert.Equal(t, Chain{Keys: keys(1, 2)}.Hash(), reg.List()[0].Hash())
}

func label(k functable.Key) (string, string) {
	return fmt.Sprintf("fn%d", k), fmt.Sprintf("file%d.zeek:%d", k, k*10)
}

func TestRenderGraph_CutoffExclusion(t *testing.T) {
	chains := []Chain{
		{Keys: keys(1, 2, 3), Count: 5},
		{Keys: keys(4, 5), Count: 1},
		{Keys: keys(3, 1), Count: 2},
	}

	var sb strings.Builder
	require.NoError(t, RenderGraph(&sb, chains, 2, label))

	want := "digraph G {\n" +
		"    1 -> 2 -> 3;\n" +
		"    3 -> 1;\n" +
		"1 [shape=box,label=\"fn1\\nfile1.zeek:10\"];\n" +
		"2 [shape=box,label=\"fn2\\nfile2.zeek:20\"];\n" +
		"3 [shape=box,label=\"fn3\\nfile3.zeek:30\"];\n" +
		"}\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, sb.String(), "fn4")
}

func TestRenderGraph_EscapesLabels(t *testing.T) {
	var sb strings.Builder
	err := RenderGraph(&sb, []Chain{{Keys: keys(1), Count: 1}}, 0,
		func(functable.Key) (string, string) { return `say "hi"`, `c:\x:1` })
	require.NoError(t, err)
	assert.Contains(t, sb.String(), `1 [shape=box,label="say \"hi\"\nc:\\x:1"];`)
	assert.Contains(t, sb.String(), "    1;\n")
}
