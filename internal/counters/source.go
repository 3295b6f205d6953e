package counters

import (
	"time"

	"github.com/rs/zerolog"
)

// Source fills the dimensions it owns in a snapshot.
// A source that fails must return before writing any dimension.
type Source interface {
	Name() string
	Read(s *Snapshot) error
}

// Clock returns the host's current virtual time in seconds.
type Clock func() float64

// Reader captures snapshots from a fixed set of sources.
//
// Reader is not safe for concurrent use; it is driven from the host's
// execution thread.
type Reader struct {
	clock   Clock
	base    time.Time
	sources []Source
	logger  zerolog.Logger

	// Sources that already reported a failure; they are warned about once.
	failed map[string]struct{}
}

// NewReader creates a snapshot reader. A nil clock reads network time as zero.
func NewReader(clock Clock, logger zerolog.Logger, sources ...Source) *Reader {
	return &Reader{
		clock:   clock,
		base:    time.Now(),
		sources: sources,
		logger:  logger.With().Str("component", "counters").Logger(),
		failed:  make(map[string]struct{}),
	}
}

// Capture reads the current state of every source. It never fails: an
// unavailable source contributes zeros.
func (r *Reader) Capture() Snapshot {
	var s Snapshot
	if r.clock != nil {
		s.NetworkTime = r.clock()
	}
	s.WallNanos = uint64(time.Since(r.base))

	for _, src := range r.sources {
		if err := src.Read(&s); err != nil {
			if _, seen := r.failed[src.Name()]; !seen {
				r.failed[src.Name()] = struct{}{}
				r.logger.Warn().Err(err).Str("source", src.Name()).
					Msg("Counter source unavailable, reporting zeros")
			}
		}
	}

	return s
}

// Sources returns the names of the configured sources.
func (r *Reader) Sources() []string {
	names := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		names = append(names, src.Name())
	}
	return names
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Fn         func(s *Snapshot) error
}

// Name implements Source.
func (f SourceFunc) Name() string { return f.SourceName }

// Read implements Source.
func (f SourceFunc) Read(s *Snapshot) error { return f.Fn(s) }
