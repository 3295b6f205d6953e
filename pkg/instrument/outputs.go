package instrument

import (
	"fmt"
	"sort"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/chain"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// processName names the whole-process collection records.
const processName = "process"

var processLocation = functable.Location{File: constants.ProcessFile}.String()

// SetOutputFormat selects the record format of streams opened afterwards.
// Unrecognized content types select JSON.
func (p *Profiler) SetOutputFormat(contentType string) {
	p.format = aggregate.ParseFormat(contentType)
}

// SetCollectionTimer sets the host time threshold, in seconds, of the
// collection trigger. Values at or below one millisecond disable it.
func (p *Profiler) SetCollectionTimer(seconds float64) {
	p.trigger.SetTimer(seconds)
}

// SetCollectionCount sets the notification count threshold of the
// collection trigger. Zero disables it.
func (p *Profiler) SetCollectionCount(n uint64) {
	p.trigger.SetCount(n)
}

// SetCollectionTarget opens path for collection snapshots and writes the
// stream opener.
func (p *Profiler) SetCollectionTarget(path string) error {
	return p.collection.Open(path, p.format, true)
}

// processRow returns the process-wide counters since the profiler started.
func (p *Profiler) processRow() aggregate.Row {
	delta, clamped := p.reader.Capture().Sub(p.baseline)
	row := aggregate.NewRow(processName, processLocation, delta)
	row.Count = p.rows.Total()
	row.Anomalies = uint64(clamped) //nolint:gosec // clamped counts dimensions
	return row
}

// WriteCollection appends one process snapshot to the collection stream.
func (p *Profiler) WriteCollection() error {
	if err := p.collection.WriteRecord(p.processRow()); err != nil {
		return fmt.Errorf("failed to write collection: %w", err)
	}
	return nil
}

// FlushCollection flushes buffered collection snapshots.
func (p *Profiler) FlushCollection() error {
	return p.collection.Flush()
}

// FinalizeCollection closes the collection record sequence.
func (p *Profiler) FinalizeCollection() error {
	return p.collection.Finalize()
}

// SetFunctionDataTarget opens path for aggregate dumps and writes the
// stream opener.
func (p *Profiler) SetFunctionDataTarget(path string) error {
	return p.functionOut.Open(path, p.format, true)
}

// sortedKeys returns the aggregated keys in ascending order.
func (p *Profiler) sortedKeys() []functable.Key {
	keys := p.rows.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WriteFunctionData appends every aggregate row, in key order, to the
// function data stream.
func (p *Profiler) WriteFunctionData() error {
	for _, k := range p.sortedKeys() {
		row, _ := p.rows.Get(k)
		if err := p.functionOut.WriteRecord(row); err != nil {
			return fmt.Errorf("failed to write function data: %w", err)
		}
	}
	return p.functionOut.Flush()
}

// FinalizeFunctionData closes the function data record sequence.
func (p *Profiler) FinalizeFunctionData() error {
	return p.functionOut.Finalize()
}

// SetChainDataTarget opens path for the call graph.
func (p *Profiler) SetChainDataTarget(path string) error {
	return p.chainOut.Open(path, p.format, false)
}

// SetChainDataCutoff sets the minimum count of chains included in the graph.
func (p *Profiler) SetChainDataCutoff(n uint64) {
	p.cutoff = n
}

// WriteChainData renders the chain registry as a DOT graph.
func (p *Profiler) WriteChainData() error {
	w, err := p.chainOut.Writer()
	if err != nil {
		return fmt.Errorf("failed to write chain data: %w", err)
	}
	if err := chain.RenderGraph(w, p.chains.List(), p.cutoff, p.label); err != nil {
		return fmt.Errorf("failed to render call graph: %w", err)
	}
	return p.chainOut.Flush()
}
