package instrument

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/collection"
	"github.com/aeppert/bro-plugin-instrumentation/internal/config"
	"github.com/aeppert/bro-plugin-instrumentation/internal/counters"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// fakeCounters is a counter source advanced by test bodies.
type fakeCounters struct {
	cpu   uint64
	alloc uint64
}

func (f *fakeCounters) source() counters.Source {
	return counters.SourceFunc{SourceName: "fake", Fn: func(s *counters.Snapshot) error {
		s.CPUNanos = f.cpu
		s.AllocBytes = f.alloc
		return nil
	}}
}

func newTestProfiler(t *testing.T, fc *fakeCounters, mutate func(*config.Config)) (*Profiler, *bytes.Buffer) {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	if fc == nil {
		fc = &fakeCounters{}
	}
	p, err := New(Config{Settings: cfg, Logger: &logger, Sources: []counters.Source{fc.source()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, &buf
}

func body(file string, line int, exec func(ctx context.Context, frame Frame) (Outcome, error)) Body {
	return Body{Location: Location{File: file, Line: line}, Exec: exec}
}

func rowOf(t *testing.T, p *Profiler, fn Function, index int) aggregate.Row {
	t.Helper()
	for _, e := range p.functions.Entries() {
		if e.Name == fn.Name() && e.Body == index {
			row, ok := p.rows.Get(e.Key)
			require.True(t, ok, "no row for %s body %d", fn.Name(), index)
			return row
		}
	}
	t.Fatalf("function %s body %d never resolved", fn.Name(), index)
	return aggregate.Row{}
}

func TestCall_AggregatesDeltas(t *testing.T) {
	fc := &fakeCounters{}
	p, _ := newTestProfiler(t, fc, nil)

	deltas := []struct{ cpu, alloc uint64 }{{1, 10}, {2, 5}, {3, 0}}
	call := 0
	f := &Script{FuncName: "f", Returns: true, Handlers: []Body{
		body("f.zeek", 3, func(context.Context, Frame) (Outcome, error) {
			fc.cpu += deltas[call].cpu
			fc.alloc += deltas[call].alloc
			call++
			return Return(call), nil
		}),
	}}

	for i := 1; i <= 3; i++ {
		res, err := p.Call(context.Background(), f, nil)
		require.NoError(t, err)
		assert.Equal(t, Value(i), res)
	}

	row := rowOf(t, p, f, 0)
	assert.Equal(t, "f", row.Name)
	assert.Equal(t, "f.zeek:3", row.Location)
	assert.Equal(t, uint64(3), row.Count)
	assert.Equal(t, uint64(6), row.CPUNanos)
	assert.Equal(t, uint64(15), row.AllocBytes)
}

func TestCall_ZeroBodies(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)
	ctx := context.Background()

	res, err := p.Call(ctx, &Script{FuncName: "h", FuncFlavor: FlavorHook}, nil)
	require.NoError(t, err)
	assert.Equal(t, Value(true), res)

	res, err = p.Call(ctx, &Script{FuncName: "e", FuncFlavor: FlavorEvent}, nil)
	require.NoError(t, err)
	assert.Equal(t, None(), res)

	assert.Equal(t, 0, p.functions.Len())
	assert.Equal(t, 0, p.rows.Len())
}

func TestCall_HookShortCircuit(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)

	secondRan := false
	hook := &Script{FuncName: "policy", FuncFlavor: FlavorHook, Handlers: []Body{
		body("a.zeek", 1, func(context.Context, Frame) (Outcome, error) {
			return Outcome{Flow: FlowBreak}, nil
		}),
		body("b.zeek", 1, func(context.Context, Frame) (Outcome, error) {
			secondRan = true
			return Outcome{}, nil
		}),
	}}

	res, err := p.Call(context.Background(), hook, nil)
	require.NoError(t, err)
	assert.Equal(t, Value(false), res)
	assert.False(t, secondRan)

	enters, exits := p.tracker.Balance()
	assert.Equal(t, uint64(1), enters)
	assert.Equal(t, uint64(1), exits)
	assert.Equal(t, 1, p.functions.Len())
}

func TestCall_HookRunsAllBodies(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)

	ran := 0
	exec := func(context.Context, Frame) (Outcome, error) {
		ran++
		return Return("ignored"), nil
	}
	hook := &Script{FuncName: "policy", FuncFlavor: FlavorHook, Handlers: []Body{
		body("a.zeek", 1, exec), body("b.zeek", 2, exec),
	}}

	res, err := p.Call(context.Background(), hook, nil)
	require.NoError(t, err)
	assert.Equal(t, Value(true), res)
	assert.Equal(t, 2, ran)
	assert.Equal(t, 2, p.rows.Len())
}

func TestCall_RecoverableFailure(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)
	ctx := context.Background()

	inner := &Script{FuncName: "inner", FuncFlavor: FlavorEvent, Handlers: []Body{
		body("inner.zeek", 1, func(context.Context, Frame) (Outcome, error) {
			return Outcome{}, fmt.Errorf("field access: %w", ErrInterpreter)
		}),
		body("inner.zeek", 9, func(context.Context, Frame) (Outcome, error) {
			return Outcome{}, nil
		}),
	}}
	outer := &Script{FuncName: "outer", Returns: true, Handlers: []Body{
		body("outer.zeek", 1, func(ctx context.Context, _ Frame) (Outcome, error) {
			_, err := p.Call(ctx, inner, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, p.Depth())
			return Return(true), nil
		}),
	}}

	res, err := p.Call(ctx, outer, nil)
	require.NoError(t, err)
	assert.Equal(t, Value(true), res)
	assert.Equal(t, 0, p.Depth())

	enters, exits := p.tracker.Balance()
	assert.Equal(t, uint64(3), enters)
	assert.Equal(t, enters, exits)

	failed := rowOf(t, p, inner, 0)
	assert.Equal(t, uint64(0), failed.Count)
	assert.Equal(t, uint64(1), failed.Failures)
	assert.Equal(t, uint64(1), rowOf(t, p, inner, 1).Count)

	chains := p.chains.List()
	require.Len(t, chains, 1)
	assert.Len(t, chains[0].Keys, 3)
}

func TestCall_UnrecoverableErrorStops(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)
	boom := errors.New("host aborted")

	secondRan := false
	ev := &Script{FuncName: "ev", FuncFlavor: FlavorEvent, Handlers: []Body{
		body("ev.zeek", 1, func(context.Context, Frame) (Outcome, error) { return Outcome{}, boom }),
		body("ev.zeek", 5, func(context.Context, Frame) (Outcome, error) {
			secondRan = true
			return Outcome{}, nil
		}),
	}}

	_, err := p.Call(context.Background(), ev, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, secondRan)
	assert.Equal(t, 0, p.Depth())
	assert.Equal(t, uint64(1), rowOf(t, p, ev, 0).Failures)
}

func TestCall_PanicUnwindsStacks(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)

	bad := &Script{FuncName: "bad", Handlers: []Body{
		body("bad.zeek", 1, func(context.Context, Frame) (Outcome, error) { panic("host bug") }),
	}}

	assert.Panics(t, func() { _, _ = p.Call(context.Background(), bad, nil) })
	assert.Equal(t, 0, p.Depth())
	assert.Empty(t, p.marks)

	enters, exits := p.tracker.Balance()
	assert.Equal(t, enters, exits)
}

func TestCall_Delayed(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)

	secondRan := false
	fn := &Script{FuncName: "lookup", Returns: true, Handlers: []Body{
		body("dns.zeek", 4, func(context.Context, Frame) (Outcome, error) {
			return Outcome{Flow: FlowDelayed}, nil
		}),
		body("dns.zeek", 8, func(context.Context, Frame) (Outcome, error) {
			secondRan = true
			return Return(1), nil
		}),
	}}

	res, err := p.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.Equal(t, Delayed(), res)
	assert.False(t, secondRan)
	assert.Equal(t, uint64(1), rowOf(t, p, fn, 0).Count)
	assert.Equal(t, 1, p.rows.Len())
}

func TestCall_RecursionFoldsIntoOneChain(t *testing.T) {
	p, _ := newTestProfiler(t, nil, nil)
	ctx := context.Background()

	var fact *Script
	fact = &Script{FuncName: "fact", Returns: true, Handlers: []Body{
		body("math.zeek", 1, func(ctx context.Context, frame Frame) (Outcome, error) {
			n := frame.(int)
			if n <= 1 {
				return Return(1), nil
			}
			res, err := p.Call(ctx, fact, n-1)
			if err != nil {
				return Outcome{}, err
			}
			return Return(n * res.Value.(int)), nil
		}),
	}}

	for i := 0; i < 2; i++ {
		res, err := p.Call(ctx, fact, 4)
		require.NoError(t, err)
		assert.Equal(t, Value(24), res)
	}

	chains := p.chains.List()
	require.Len(t, chains, 1)
	assert.Equal(t, uint64(2), chains[0].Count)
	assert.Equal(t, []functable.Key{1, 1, 1, 1}, chains[0].Keys)
	assert.Equal(t, uint64(8), rowOf(t, p, fact, 0).Count)
}

func TestCall_MissingValueWarning(t *testing.T) {
	p, logs := newTestProfiler(t, nil, nil)

	fn := &Script{FuncName: "compute", Returns: true, Handlers: []Body{
		body("c.zeek", 1, func(context.Context, Frame) (Outcome, error) { return Outcome{}, nil }),
	}}

	res, err := p.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.Equal(t, None(), res)
	assert.Contains(t, logs.String(), "Non-void function returns without a value")
	assert.Contains(t, logs.String(), "compute")
}

func TestCall_Builtins(t *testing.T) {
	ctx := context.Background()
	strlen := &Builtin{FuncName: "strlen", Returns: true, Fn: func(_ context.Context, frame Frame) (Result, error) {
		return Value(len(frame.(string))), nil
	}}

	t.Run("passthrough", func(t *testing.T) {
		p, _ := newTestProfiler(t, nil, nil)
		res, err := p.Call(ctx, strlen, "abc")
		require.NoError(t, err)
		assert.Equal(t, Value(3), res)
		assert.Equal(t, 0, p.functions.Len())
	})

	t.Run("measured", func(t *testing.T) {
		p, _ := newTestProfiler(t, nil, func(c *config.Config) { c.Collection.Builtins = true })
		res, err := p.Call(ctx, strlen, "abcd")
		require.NoError(t, err)
		assert.Equal(t, Value(4), res)

		row := rowOf(t, p, strlen, 0)
		assert.Equal(t, "<builtin>:0", row.Location)
		assert.Equal(t, uint64(1), row.Count)
	})
}

type opaque struct{}

func (*opaque) Name() string   { return "opaque" }
func (*opaque) Flavor() Flavor { return FlavorFunction }
func (*opaque) Yields() bool   { return false }

func TestCall_UnsupportedFunction(t *testing.T) {
	p, logs := newTestProfiler(t, nil, nil)

	_, err := p.Call(context.Background(), &opaque{}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFunction)
	assert.Contains(t, logs.String(), "Unable to detect function call type")

	_, err = p.Call(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFunction)
}

type valueScript struct {
	handlers []Body
}

func (v valueScript) Name() string   { return "value_script" }
func (v valueScript) Flavor() Flavor { return FlavorEvent }
func (v valueScript) Yields() bool   { return false }
func (v valueScript) Bodies() []Body { return v.handlers }

func TestCall_RejectsNonComparableFunction(t *testing.T) {
	p, logs := newTestProfiler(t, nil, nil)

	ran := false
	fn := valueScript{handlers: []Body{{
		Location: Location{File: "a.zeek", Line: 1},
		Exec: func(context.Context, Frame) (Outcome, error) {
			ran = true
			return Outcome{}, nil
		},
	}}}

	var err error
	require.NotPanics(t, func() {
		_, err = p.Call(context.Background(), fn, nil)
	})
	assert.ErrorIs(t, err, ErrUnsupportedFunction)
	assert.False(t, ran)
	assert.Equal(t, 0, p.functions.Len())
	assert.Contains(t, logs.String(), "not comparable")
}

func TestCall_FilterExcludesBodies(t *testing.T) {
	p, _ := newTestProfiler(t, nil, func(c *config.Config) {
		c.Filter.Expression = `!name.startsWith("Log::")`
	})

	ran := 0
	exec := func(context.Context, Frame) (Outcome, error) {
		ran++
		return Outcome{}, nil
	}
	logWrite := &Script{FuncName: "Log::write", FuncFlavor: FlavorEvent, Handlers: []Body{body("log.zeek", 1, exec)}}
	conn := &Script{FuncName: "connection_state_remove", FuncFlavor: FlavorEvent, Handlers: []Body{body("conn.zeek", 1, exec)}}

	for _, fn := range []Function{logWrite, conn, logWrite} {
		_, err := p.Call(context.Background(), fn, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, ran)
	assert.Equal(t, 1, p.rows.Len())
	assert.Equal(t, uint64(1), rowOf(t, p, conn, 0).Count)
	assert.Equal(t, 1, p.chains.Len())
}

func TestOnTimeUpdate_TriggerExclusivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.json")
	p, _ := newTestProfiler(t, nil, func(c *config.Config) {
		c.Collection.Count = 100
		c.Collection.Timer = 5.0
		c.Collection.Target = path
	})

	for i := 1; i <= 100; i++ {
		require.NoError(t, p.OnTimeUpdate(float64(i)*0.01))
	}
	require.NoError(t, p.FinalizeCollection())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, format, err := aggregate.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, aggregate.FormatJSON, format)
	require.Len(t, rows, 1)
	assert.Equal(t, "process", rows[0].Name)
	assert.InDelta(t, 1.0, rows[0].NetworkTime, 1e-9)
}

func TestWriteCollection_ProcessRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.json")
	fc := &fakeCounters{}
	p, _ := newTestProfiler(t, fc, func(c *config.Config) {
		c.Collection.Target = path
	})

	fn := &Script{FuncName: "f", FuncFlavor: FlavorFunction, Handlers: []Body{
		body("a.zeek", 3, func(context.Context, Frame) (Outcome, error) {
			fc.cpu += 10
			return Outcome{}, nil
		}),
	}}
	failing := &Script{FuncName: "g", FuncFlavor: FlavorFunction, Handlers: []Body{
		body("b.zeek", 7, func(context.Context, Frame) (Outcome, error) {
			return Outcome{}, ErrInterpreter
		}),
	}}
	for i := 0; i < 2; i++ {
		_, err := p.Call(context.Background(), fn, nil)
		require.NoError(t, err)
	}
	_, err := p.Call(context.Background(), failing, nil)
	require.NoError(t, err)

	require.NoError(t, p.WriteCollection())
	require.NoError(t, p.FinalizeCollection())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, _, err := aggregate.Decode(f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "process", rows[0].Name)
	assert.Equal(t, "<process>:0", rows[0].Location)
	assert.Equal(t, uint64(2), rows[0].Count)
	assert.Equal(t, uint64(20), rows[0].CPUNanos)
}

func TestOnTimeUpdate_TimeTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.csv")
	p, _ := newTestProfiler(t, nil, func(c *config.Config) {
		c.Output.Format = "text/csv"
		c.Collection.Timer = 1.0
		c.Collection.Target = path
	})

	for _, ts := range []float64{0.5, 1.5, 2.0, 2.6, 2.7} {
		require.NoError(t, p.OnTimeUpdate(ts))
	}
	require.NoError(t, p.FinalizeCollection())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, format, err := aggregate.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, aggregate.FormatCSV, format)
	require.Len(t, rows, 2)
	assert.InDelta(t, 1.5, rows[0].NetworkTime, 1e-9)
	assert.InDelta(t, 2.6, rows[1].NetworkTime, 1e-9)
}

func TestOnTimeUpdate_WithoutTargetFailsLoudly(t *testing.T) {
	p, _ := newTestProfiler(t, nil, func(c *config.Config) { c.Collection.Count = 1 })

	err := p.OnTimeUpdate(1)
	assert.ErrorIs(t, err, collection.ErrStreamNotOpen)
	assert.ErrorIs(t, p.WriteFunctionData(), collection.ErrStreamNotOpen)
	assert.ErrorIs(t, p.WriteChainData(), collection.ErrStreamNotOpen)
}

func TestWriteFunctionData(t *testing.T) {
	for _, contentType := range []string{"application/json", "text/csv", "application/xml"} {
		t.Run(contentType, func(t *testing.T) {
			fc := &fakeCounters{}
			p, _ := newTestProfiler(t, fc, nil)
			p.SetOutputFormat(contentType)

			path := filepath.Join(t.TempDir(), "functions.out")
			require.NoError(t, p.SetFunctionDataTarget(path))

			a := &Script{FuncName: "a", FuncFlavor: FlavorEvent, Handlers: []Body{
				body("a.zeek", 1, func(context.Context, Frame) (Outcome, error) { fc.cpu += 5; return Outcome{}, nil }),
			}}
			b := &Script{FuncName: "b", FuncFlavor: FlavorEvent, Handlers: []Body{
				body("b.zeek", 2, func(context.Context, Frame) (Outcome, error) { fc.cpu += 7; return Outcome{}, nil }),
			}}
			for _, fn := range []Function{a, b, b} {
				_, err := p.Call(context.Background(), fn, nil)
				require.NoError(t, err)
			}

			require.NoError(t, p.WriteFunctionData())
			require.NoError(t, p.FinalizeFunctionData())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			rows, format, err := aggregate.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, aggregate.ParseFormat(contentType), format)
			require.Len(t, rows, 2)
			assert.Equal(t, "a", rows[0].Name)
			assert.Equal(t, uint64(5), rows[0].CPUNanos)
			assert.Equal(t, "b", rows[1].Name)
			assert.Equal(t, uint64(2), rows[1].Count)
			assert.Equal(t, uint64(14), rows[1].CPUNanos)
		})
	}
}

func TestWriteChainData(t *testing.T) {
	p, _ := newTestProfiler(t, nil, func(c *config.Config) {
		c.Paths.StripPrefixes = []string{"/opt/zeek/share"}
	})
	ctx := context.Background()

	leaf := &Script{FuncName: "leaf", FuncFlavor: FlavorEvent, Handlers: []Body{
		body("/opt/zeek/share/base/leaf.zeek", 7, func(context.Context, Frame) (Outcome, error) { return Outcome{}, nil }),
	}}
	root := &Script{FuncName: "root", FuncFlavor: FlavorEvent, Handlers: []Body{
		body("/opt/zeek/share/base/root.zeek", 2, func(ctx context.Context, _ Frame) (Outcome, error) {
			_, err := p.Call(ctx, leaf, nil)
			return Outcome{}, err
		}),
	}}
	rare := &Script{FuncName: "rare", FuncFlavor: FlavorEvent, Handlers: []Body{
		body("rare.zeek", 1, func(context.Context, Frame) (Outcome, error) { return Outcome{}, nil }),
	}}

	for _, fn := range []Function{root, root, rare} {
		_, err := p.Call(ctx, fn, nil)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "chains.dot")
	require.NoError(t, p.SetChainDataTarget(path))
	p.SetChainDataCutoff(2)
	require.NoError(t, p.WriteChainData())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := strings.Join([]string{
		"digraph G {",
		"    1 -> 2;",
		`1 [shape=box,label="root\nbase/root.zeek:2"];`,
		`2 [shape=box,label="leaf\nbase/leaf.zeek:7"];`,
		"}",
		"",
	}, "\n")
	assert.Equal(t, want, string(data))
}

func TestClose_FinalizesStreams(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Collection.Target = filepath.Join(dir, "collection.json")
	cfg.Functions.Target = filepath.Join(dir, "functions.json")
	cfg.Collection.Count = 1

	logger := zerolog.Nop()
	p, err := New(Config{Settings: cfg, Logger: &logger, Sources: []counters.Source{}})
	require.NoError(t, err)

	require.NoError(t, p.OnTimeUpdate(1))
	require.NoError(t, p.WriteFunctionData())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	for _, name := range []string{"collection.json", "functions.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		_, _, err = aggregate.Decode(bytes.NewReader(data))
		assert.NoError(t, err, name)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Filter.Expression = "name +"

	logger := zerolog.Nop()
	_, err := New(Config{Settings: cfg, Logger: &logger})
	assert.Error(t, err)
}
