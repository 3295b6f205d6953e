package export

import (
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// ScopeName is the instrumentation scope of exported metrics.
const ScopeName = "github.com/aeppert/bro-plugin-instrumentation"

type metricSpec struct {
	name  string
	unit  string
	desc  string
	value func(r aggregate.Row) uint64
}

var functionMetrics = []metricSpec{
	{"function.calls", "{call}", "Completed executions of a function body.", func(r aggregate.Row) uint64 { return r.Count }},
	{"function.failures", "{call}", "Executions that ended in a recoverable failure.", func(r aggregate.Row) uint64 { return r.Failures }},
	{"function.wall_time", "ns", "Elapsed wall time spent in a function body.", func(r aggregate.Row) uint64 { return r.WallNanos }},
	{"function.cpu_time", "ns", "Process CPU time spent in a function body.", func(r aggregate.Row) uint64 { return r.CPUNanos }},
	{"function.alloc", "By", "Heap bytes allocated while a function body ran.", func(r aggregate.Row) uint64 { return r.AllocBytes }},
	{"function.io", "By", "Bytes read and written while a function body ran.", func(r aggregate.Row) uint64 { return safe.AddUint64(r.ReadBytes, r.WriteBytes) }},
}

// Metrics converts aggregate rows into cumulative OTLP sums. Exported values
// become resource attributes.
func Metrics(rows []aggregate.Row, values map[string]string, serviceName string, start, now time.Time) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()

	attrs := rm.Resource().Attributes()
	if serviceName != "" {
		attrs.PutStr("service.name", serviceName)
	}
	for k, v := range values {
		attrs.PutStr(k, v)
	}

	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName(ScopeName)

	startTS := pcommon.NewTimestampFromTime(start)
	nowTS := pcommon.NewTimestampFromTime(now)

	for _, spec := range functionMetrics {
		m := sm.Metrics().AppendEmpty()
		m.SetName(spec.name)
		m.SetUnit(spec.unit)
		m.SetDescription(spec.desc)

		sum := m.SetEmptySum()
		sum.SetIsMonotonic(true)
		sum.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)

		for _, r := range rows {
			dp := sum.DataPoints().AppendEmpty()
			dp.SetStartTimestamp(startTS)
			dp.SetTimestamp(nowTS)
			v, _ := safe.Uint64ToInt64(spec.value(r))
			dp.SetIntValue(v)
			dp.Attributes().PutStr("code.function", r.Name)
			dp.Attributes().PutStr("code.location", r.Location)
		}
	}

	return md
}

// WriteMetrics writes md as one line of OTLP JSON.
func WriteMetrics(w io.Writer, md pmetric.Metrics) error {
	var m pmetric.JSONMarshaler
	data, err := m.MarshalMetrics(md)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
