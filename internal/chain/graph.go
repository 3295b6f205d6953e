package chain

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// LabelFunc returns the display name and location of a key.
type LabelFunc func(key functable.Key) (name, location string)

// RenderGraph writes the chains whose count is at least cutoff as a DOT digraph:
// one edge statement per chain, then one box node per distinct key used.
func RenderGraph(w io.Writer, chains []Chain, cutoff uint64, label LabelFunc) error {
	bw := bufio.NewWriter(w)
	used := make(map[functable.Key]struct{})

	fmt.Fprintln(bw, "digraph G {")
	for _, c := range chains {
		if c.Count < cutoff || len(c.Keys) == 0 {
			continue
		}
		bw.WriteString("    ")
		for i, k := range c.Keys {
			if i > 0 {
				bw.WriteString(" -> ")
			}
			fmt.Fprintf(bw, "%d", k)
			used[k] = struct{}{}
		}
		bw.WriteString(";\n")
	}

	keys := make([]functable.Key, 0, len(used))
	for k := range used {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		name, location := label(k)
		fmt.Fprintf(bw, "%d [shape=box,label=\"%s\\n%s\"];\n", k, escape(name), escape(location))
	}
	fmt.Fprintln(bw, "}")

	return bw.Flush()
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escape(s string) string {
	return dotEscaper.Replace(s)
}
