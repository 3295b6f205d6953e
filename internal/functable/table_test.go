package functable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFunc struct{ name string }

func TestTable_ResolveIsStable(t *testing.T) {
	table := New()
	f := &fakeFunc{name: "f"}
	g := &fakeFunc{name: "g"}

	k1, created := table.Resolve(f, "f", 0, Location{File: "a.zeek", Line: 3})
	require.True(t, created)
	assert.Equal(t, Key(1), k1)

	// Resolve a batch of unrelated functions in between.
	for i := 0; i < 50; i++ {
		table.Resolve(&fakeFunc{}, "other", 0, Location{})
	}
	kg, _ := table.Resolve(g, "g", 0, Location{File: "b.zeek", Line: 9})

	again, created := table.Resolve(f, "f", 0, Location{File: "ignored", Line: 1})
	assert.False(t, created)
	assert.Equal(t, k1, again)
	assert.NotEqual(t, k1, kg)

	entry := table.Lookup(k1)
	assert.Equal(t, "f", entry.Name)
	assert.Equal(t, "a.zeek:3", entry.Location.String())
}

func TestTable_BodiesGetDistinctKeys(t *testing.T) {
	table := New()
	hook := &fakeFunc{name: "h"}

	k0, _ := table.Resolve(hook, "h", 0, Location{File: "x", Line: 1})
	k1, _ := table.Resolve(hook, "h", 1, Location{File: "y", Line: 2})
	assert.NotEqual(t, k0, k1)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.Lookup(k1).Body)
	assert.Len(t, table.Entries(), 2)
}

func TestTable_LookupUnknownPanics(t *testing.T) {
	table := New()
	assert.Panics(t, func() { table.Lookup(0) })
	assert.Panics(t, func() { table.Lookup(7) })
}

func TestBeautifier(t *testing.T) {
	b := NewBeautifier("/usr/local/share", "/usr/local/share/zeek/base", "")

	tests := []struct {
		in, want string
	}{
		{"/usr/local/share/zeek/base/init.zeek", "init.zeek"},
		{"/usr/local/share/site/local.zeek", "site/local.zeek"},
		{"/opt/scripts/./main.zeek", "/opt/scripts/main.zeek"},
		{"<builtin>", "<builtin>"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Beautify(tt.in), tt.in)
	}

	assert.Equal(t, "init.zeek:12",
		b.BeautifyLocation(Location{File: "/usr/local/share/zeek/base/init.zeek", Line: 12}))

	var nilB *Beautifier
	assert.Equal(t, "a/b", nilB.Beautify("a//b"))
}
