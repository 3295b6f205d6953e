package counters

import (
	"fmt"
	"runtime/metrics"
)

var memorySampleNames = []string{
	"/gc/heap/allocs:bytes",
	"/gc/heap/frees:bytes",
	"/gc/heap/allocs:objects",
	"/gc/heap/frees:objects",
}

// MemorySource reads cumulative heap allocation counters from runtime/metrics.
// Unlike runtime.ReadMemStats it does not stop the world.
type MemorySource struct {
	samples []metrics.Sample
}

// NewMemorySource creates a heap allocation counter source.
func NewMemorySource() *MemorySource {
	samples := make([]metrics.Sample, len(memorySampleNames))
	for i, name := range memorySampleNames {
		samples[i].Name = name
	}
	return &MemorySource{samples: samples}
}

// Name implements Source.
func (m *MemorySource) Name() string { return "memory" }

// Read implements Source.
func (m *MemorySource) Read(s *Snapshot) error {
	metrics.Read(m.samples)

	var values [4]uint64
	for i, sample := range m.samples {
		if sample.Value.Kind() != metrics.KindUint64 {
			return fmt.Errorf("metric %s unsupported by this runtime", sample.Name)
		}
		values[i] = sample.Value.Uint64()
	}

	s.AllocBytes = values[0]
	s.FreedBytes = values[1]
	s.AllocObjects = values[2]
	s.FreedObjects = values[3]
	return nil
}
