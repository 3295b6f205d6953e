// Package report implements the 'instrument report' command, which summarizes
// a function data dump written by the profiler.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/cli/helpers"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Entry is one report line.
type Entry struct {
	Name       string `header:"FUNCTION" json:"name" yaml:"name"`
	Location   string `header:"LOCATION" json:"location" yaml:"location"`
	Count      uint64 `header:"COUNT" json:"count" yaml:"count"`
	Failures   uint64 `header:"FAILURES" json:"failures" yaml:"failures"`
	CPUNanos   uint64 `header:"CPU_NS" json:"cpu_ns" yaml:"cpu_ns"`
	WallNanos  uint64 `header:"WALL_NS" json:"wall_ns" yaml:"wall_ns"`
	AllocBytes uint64 `header:"ALLOC_BYTES" json:"alloc_bytes" yaml:"alloc_bytes"`
	PerCall    string `header:"CPU_NS/CALL" json:"cpu_ns_per_call" yaml:"cpu_ns_per_call"`
}

// sortKeys maps --by values to row accessors.
var sortKeys = map[string]func(aggregate.Row) float64{
	"count":         func(r aggregate.Row) float64 { return float64(r.Count) },
	"failures":      func(r aggregate.Row) float64 { return float64(r.Failures) },
	"anomalies":     func(r aggregate.Row) float64 { return float64(r.Anomalies) },
	"network_time":  func(r aggregate.Row) float64 { return r.NetworkTime },
	"wall_ns":       func(r aggregate.Row) float64 { return float64(r.WallNanos) },
	"cpu_ns":        func(r aggregate.Row) float64 { return float64(r.CPUNanos) },
	"alloc_bytes":   func(r aggregate.Row) float64 { return float64(r.AllocBytes) },
	"freed_bytes":   func(r aggregate.Row) float64 { return float64(r.FreedBytes) },
	"alloc_objects": func(r aggregate.Row) float64 { return float64(r.AllocObjects) },
	"freed_objects": func(r aggregate.Row) float64 { return float64(r.FreedObjects) },
	"read_bytes":    func(r aggregate.Row) float64 { return float64(r.ReadBytes) },
	"write_bytes":   func(r aggregate.Row) float64 { return float64(r.WriteBytes) },
}

var formats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV, helpers.FormatYAML}

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	var (
		by     string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "report <file>",
		Short: "Summarize a function data dump",
		Long: `Summarize a function data dump written by the profiler.

The dump may be JSON or CSV; the format is detected from its content.
Functions are sorted by the chosen field and the top entries are printed.

Examples:
  instrument report functions.json
  instrument report functions.csv --by alloc_bytes --limit 10
  instrument report functions.json -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, formats); err != nil {
				return err
			}
			f, err := safe.OpenFile(args[0], nil)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			entries, err := Build(f, by, limit)
			if err != nil {
				return err
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format), helpers.IsTerminal(os.Stdout))
			if err != nil {
				return err
			}
			return formatter.Format(entries, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&by, "by", "cpu_ns", "Field to sort by")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of functions to show (0 for all)")
	_ = cmd.RegisterFlagCompletionFunc("by", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return sortKeyNames(), cobra.ShellCompDirectiveNoFileComp
	})
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, formats)

	return cmd
}

func sortKeyNames() []string {
	names := make([]string, 0, len(sortKeys))
	for k := range sortKeys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Build decodes a dump, keeps the latest record of each function, sorts by
// field descending and keeps the first limit entries.
func Build(r io.Reader, field string, limit int) ([]Entry, error) {
	key, ok := sortKeys[field]
	if !ok {
		return nil, fmt.Errorf("cannot sort by %q, must be one of %v", field, sortKeyNames())
	}

	rows, _, err := aggregate.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dump: %w", err)
	}

	rows = Latest(rows)
	sort.SliceStable(rows, func(i, j int) bool { return key(rows[i]) > key(rows[j]) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry{
			Name:       row.Name,
			Location:   row.Location,
			Count:      row.Count,
			Failures:   row.Failures,
			CPUNanos:   row.CPUNanos,
			WallNanos:  row.WallNanos,
			AllocBytes: row.AllocBytes,
			PerCall:    perCall(row.CPUNanos, row.Count),
		}
	}
	return entries, nil
}

// Latest keeps one record per name and location. Each WriteFunctionData pass
// appends cumulative rows, so a later record replaces an earlier one.
func Latest(rows []aggregate.Row) []aggregate.Row {
	index := make(map[[2]string]int)
	var out []aggregate.Row
	for _, r := range rows {
		id := [2]string{r.Name, r.Location}
		if i, ok := index[id]; ok {
			out[i] = r
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}
	return out
}

func perCall(total, count uint64) string {
	if count == 0 {
		return "-"
	}
	return strconv.FormatFloat(float64(total)/float64(count), 'f', 1, 64)
}
