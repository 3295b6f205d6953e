package instrument

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/chain"
	"github.com/aeppert/bro-plugin-instrumentation/internal/collection"
	"github.com/aeppert/bro-plugin-instrumentation/internal/config"
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
	"github.com/aeppert/bro-plugin-instrumentation/internal/counters"
	"github.com/aeppert/bro-plugin-instrumentation/internal/duckdb"
	ierrors "github.com/aeppert/bro-plugin-instrumentation/internal/errors"
	"github.com/aeppert/bro-plugin-instrumentation/internal/export"
	"github.com/aeppert/bro-plugin-instrumentation/internal/filter"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
	"github.com/aeppert/bro-plugin-instrumentation/internal/logging"
	"github.com/aeppert/bro-plugin-instrumentation/internal/storage"
)

const (
	kindScript  = "script"
	kindBuiltin = "builtin"
)

// Config contains profiler construction options.
type Config struct {
	// Settings is the instrumentation config (optional, defaults to config.Default()).
	Settings *config.Config

	// Logger is the logger instance (optional, built from Settings.Logging).
	Logger *zerolog.Logger

	// Sources replaces the counter sources selected by Settings.Counters.
	Sources []counters.Source

	// Clock replaces the host network time reported in snapshots.
	Clock func() float64
}

// bodyMeta is cached per function key on first sight.
type bodyMeta struct {
	location string
	excluded bool
}

// Profiler is the instrumentation driver. It owns every table, the counter
// stack and the output streams for one host process.
type Profiler struct {
	settings *config.Config
	logger   zerolog.Logger

	functions  *functable.Table
	beautifier *functable.Beautifier
	meta       map[functable.Key]bodyMeta
	filter     *filter.Filter
	builtins   bool

	rows    *aggregate.Table
	chains  *chain.Registry
	tracker *chain.Tracker
	reader  *counters.Reader

	// Start snapshots of the bodies currently executing, innermost last.
	marks []counters.Snapshot

	format      aggregate.Format
	trigger     collection.Trigger
	collection  *collection.Stream
	functionOut *collection.Stream
	chainOut    *collection.Stream
	cutoff      uint64

	exports     *export.Values
	baseline    counters.Snapshot
	started     time.Time
	sessionID   string
	networkTime float64

	db     *sql.DB
	store  *storage.Storage
	closed bool
}

// New creates a profiler, opens the configured output targets and, when
// enabled, the DuckDB store.
func New(cfg Config) (*Profiler, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := config.Validate(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "instrument").Logger()
	} else {
		logger = logging.NewWithComponent(logging.Config{
			Level:  settings.Logging.Level,
			Pretty: settings.Logging.Pretty,
		}, "instrument")
	}

	flt, err := filter.New(settings.Filter.Expression)
	if err != nil {
		return nil, err
	}

	p := &Profiler{
		settings:    settings,
		logger:      logger,
		functions:   functable.New(),
		beautifier:  functable.NewBeautifier(settings.Paths.StripPrefixes...),
		meta:        make(map[functable.Key]bodyMeta),
		filter:      flt,
		builtins:    settings.Collection.Builtins,
		rows:        aggregate.NewTable(),
		chains:      chain.NewRegistry(),
		format:      aggregate.ParseFormat(settings.Output.Format),
		collection:  collection.NewStream("collection"),
		functionOut: collection.NewStream("function data"),
		chainOut:    collection.NewStream("chain data"),
		cutoff:      settings.Chains.Cutoff,
		exports:     export.NewValues(),
		started:     time.Now(),
		sessionID:   uuid.NewString(),
	}
	p.tracker = chain.NewTracker(p.chains, settings.Chains.MaxLength)

	clock := cfg.Clock
	if clock == nil {
		clock = func() float64 { return p.networkTime }
	}
	sources := cfg.Sources
	if sources == nil {
		sources = defaultSources(settings.Counters)
	}
	p.reader = counters.NewReader(clock, logger, sources...)

	p.trigger.SetTimer(settings.Collection.Timer)
	p.trigger.SetCount(settings.Collection.Count)

	if err := p.openTargets(); err != nil {
		_ = p.closeResources()
		return nil, err
	}

	if settings.Storage.Enabled {
		db, err := duckdb.OpenDB(settings.Storage.Path)
		if err != nil {
			_ = p.closeResources()
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		p.db = db
		store, err := storage.NewStorage(db, logger)
		if err != nil {
			_ = p.closeResources()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		p.store = store
	}

	p.baseline = p.reader.Capture()

	logger.Info().
		Str("session_id", p.sessionID).
		Str("format", p.format.ContentType()).
		Strs("sources", p.reader.Sources()).
		Bool("filtered", flt != nil).
		Bool("collection_trigger", p.trigger.Armed()).
		Bool("storage", p.store != nil).
		Msg("Instrumentation profiler initialized")

	return p, nil
}

func defaultSources(c config.CountersConfig) []counters.Source {
	var sources []counters.Source
	if c.CPU {
		sources = append(sources, counters.NewCPUSource())
	}
	if c.Memory {
		sources = append(sources, counters.NewMemorySource())
	}
	if c.IO {
		sources = append(sources, counters.NewIOSource())
	}
	return sources
}

func (p *Profiler) openTargets() error {
	if t := p.settings.Collection.Target; t != "" {
		if err := p.SetCollectionTarget(t); err != nil {
			return err
		}
	}
	if t := p.settings.Functions.Target; t != "" {
		if err := p.SetFunctionDataTarget(t); err != nil {
			return err
		}
	}
	if t := p.settings.Chains.Target; t != "" {
		if err := p.SetChainDataTarget(t); err != nil {
			return err
		}
	}
	return nil
}

// SessionID identifies this profiler in persisted storage.
func (p *Profiler) SessionID() string {
	return p.sessionID
}

// Depth returns the current call nesting depth.
func (p *Profiler) Depth() int {
	return p.tracker.Depth()
}

// Call executes fn on behalf of the host and measures each of its bodies.
// fn identifies the function across calls, so its dynamic type must be
// comparable (typically a pointer).
func (p *Profiler) Call(ctx context.Context, fn Function, frame Frame) (Result, error) {
	if fn != nil && !reflect.TypeOf(fn).Comparable() {
		p.logger.Warn().
			Str("function", fn.Name()).
			Str("type", fmt.Sprintf("%T", fn)).
			Msg("Function value is not comparable, leaving it to the host")
		return None(), fmt.Errorf("%w: %T is not comparable", ErrUnsupportedFunction, fn)
	}

	switch f := fn.(type) {
	case ScriptFunction:
		return p.callScript(ctx, f, frame)
	case BuiltinFunction:
		return p.callBuiltin(ctx, f, frame)
	case nil:
		return None(), fmt.Errorf("%w: nil function", ErrUnsupportedFunction)
	}

	p.logger.Warn().
		Str("function", fn.Name()).
		Str("type", fmt.Sprintf("%T", fn)).
		Msg("Unable to detect function call type, leaving it to the host")
	return None(), fmt.Errorf("%w: %T", ErrUnsupportedFunction, fn)
}

func (p *Profiler) callScript(ctx context.Context, fn ScriptFunction, frame Frame) (Result, error) {
	bodies := fn.Bodies()
	hook := fn.Flavor() == FlavorHook

	if len(bodies) == 0 {
		if hook {
			return Value(true), nil
		}
		return None(), nil
	}

	var last Outcome
	for i, b := range bodies {
		exec := b.Exec
		out, err := p.measure(fn, i, b.Location, kindScript, func() (Outcome, error) {
			return exec(ctx, frame)
		})
		if err != nil {
			if errors.Is(err, ErrInterpreter) {
				last = Outcome{}
				continue
			}
			return None(), err
		}
		last = out

		if out.Flow == FlowDelayed {
			return Delayed(), nil
		}
		if hook && out.Flow == FlowBreak {
			return Value(false), nil
		}
	}

	switch fn.Flavor() {
	case FlavorHook:
		return Value(true), nil
	case FlavorEvent:
		return None(), nil
	}

	if fn.Yields() && (last.Flow != FlowReturn || !last.HasValue) {
		p.logger.Warn().Str("function", fn.Name()).Msg("Non-void function returns without a value")
	}
	if !last.HasValue {
		return None(), nil
	}
	return Value(last.Value), nil
}

func (p *Profiler) callBuiltin(ctx context.Context, fn BuiltinFunction, frame Frame) (Result, error) {
	if !p.builtins {
		return fn.Invoke(ctx, frame)
	}

	var res Result
	_, err := p.measure(fn, 0, Location{File: constants.BuiltinFile}, kindBuiltin, func() (Outcome, error) {
		var err error
		res, err = fn.Invoke(ctx, frame)
		return Outcome{Flow: FlowReturn, Value: res.Value, HasValue: res.Kind == ResultValue}, err
	})
	return res, err
}

// measure brackets one body execution: resolve, enter, capture, execute,
// capture, exit, merge. The stacks are unwound even if exec panics.
func (p *Profiler) measure(fn Function, body int, loc Location, kind string, exec func() (Outcome, error)) (Outcome, error) {
	name := fn.Name()
	key, created := p.functions.Resolve(fn, name, body, functable.Location(loc))
	if created {
		p.describe(key, name, body, loc, kind)
	}
	meta := p.meta[key]
	if meta.excluded {
		return exec()
	}

	p.tracker.Enter(key)
	p.marks = append(p.marks, p.reader.Capture())
	done := false
	defer func() {
		if !done {
			p.marks = p.marks[:len(p.marks)-1]
			p.tracker.Exit()
		}
	}()

	out, err := exec()

	end := p.reader.Capture()
	start := p.marks[len(p.marks)-1]
	p.marks = p.marks[:len(p.marks)-1]
	p.tracker.Exit()
	done = true

	if err != nil {
		p.rows.Fail(key, name, meta.location)
		p.logger.Debug().Err(err).Str("function", name).Int("body", body).Msg("Function body failed")
		return out, err
	}

	delta, clamped := end.Sub(start)
	if clamped > 0 {
		p.logger.Debug().Str("function", name).Int("dimensions", clamped).Msg("Clamped negative counter delta")
	}
	p.rows.Merge(key, name, meta.location, delta, clamped)

	p.logger.Trace().Str("function", name).Uint32("key", uint32(key)).Msg("Measured function body")
	return out, nil
}

// describe caches display metadata and the filter decision for a new key.
func (p *Profiler) describe(key functable.Key, name string, body int, loc Location, kind string) {
	meta := bodyMeta{location: p.beautifier.BeautifyLocation(functable.Location(loc))}

	include, err := p.filter.Include(filter.Subject{
		Name: name, File: loc.File, Line: loc.Line, Body: body, Kind: kind,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("function", name).Msg("Filter evaluation failed, measuring function")
		include = true
	}
	meta.excluded = !include
	p.meta[key] = meta

	p.logger.Debug().
		Str("function", name).
		Int("body", body).
		Str("location", meta.location).
		Bool("excluded", meta.excluded).
		Uint32("key", uint32(key)).
		Msg("Registered function body")
}

// label names a key for the call graph.
func (p *Profiler) label(key functable.Key) (string, string) {
	e := p.functions.Lookup(key)
	return e.Name, p.beautifier.BeautifyLocation(e.Location)
}

// OnTimeUpdate records the host's new network time and writes a collection
// snapshot when the count or time trigger fires.
func (p *Profiler) OnTimeUpdate(t float64) error {
	p.networkTime = t
	if !p.trigger.Notify(t) {
		return nil
	}
	return p.WriteCollection()
}

// Close finalizes unfinalized record streams, persists when storage is
// enabled and releases every resource.
func (p *Profiler) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, s := range []*collection.Stream{p.collection, p.functionOut} {
		if s.IsOpen() && !s.Finalized() {
			if err := s.Finalize(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if p.store != nil {
		if err := p.Persist(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	if err := p.closeResources(); err != nil {
		errs = append(errs, err)
	}

	p.logger.Info().
		Uint64("executions", p.rows.Total()).
		Int("functions", p.functions.Len()).
		Int("chains", p.chains.Len()).
		Msg("Instrumentation profiler closed")

	return errors.Join(errs...)
}

func (p *Profiler) closeResources() error {
	closers := []io.Closer{p.collection, p.functionOut, p.chainOut}
	if p.db != nil {
		closers = append(closers, p.db)
	}
	return ierrors.CloseAll(closers...)
}
