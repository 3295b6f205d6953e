package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Profile builds a flat pprof profile with one sample per aggregate row.
// Sample values are count, cpu, wall and alloc_space, in that order.
func Profile(rows []aggregate.Row, start time.Time, duration time.Duration) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "count", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
			{Type: "wall", Unit: "nanoseconds"},
			{Type: "alloc_space", Unit: "bytes"},
		},
		DefaultSampleType: "cpu",
		TimeNanos:         start.UnixNano(),
		DurationNanos:     duration.Nanoseconds(),
	}

	i64 := func(v uint64) int64 {
		n, _ := safe.Uint64ToInt64(v)
		return n
	}

	for i, r := range rows {
		id := uint64(i + 1)
		file, line := splitLocation(r.Location)

		fn := &profile.Function{
			ID:         id,
			Name:       r.Name,
			SystemName: r.Name,
			Filename:   file,
			StartLine:  line,
		}
		loc := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{i64(r.Count), i64(r.CPUNanos), i64(r.WallNanos), i64(r.AllocBytes)},
			Label:    map[string][]string{"location": {r.Location}},
		})
	}

	return p
}

// WriteProfile validates p and writes it gzip-compressed.
func WriteProfile(w io.Writer, p *profile.Profile) error {
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func splitLocation(loc string) (string, int64) {
	idx := strings.LastIndex(loc, ":")
	if idx < 0 {
		return loc, 0
	}
	line, err := strconv.ParseInt(loc[idx+1:], 10, 64)
	if err != nil {
		return loc, 0
	}
	return loc[:idx], line
}
