// Package instrument measures every function body a host interpreter executes.
//
// The host hands each call to a Profiler instead of executing it directly.
// The profiler brackets every body with counter snapshots, aggregates the
// deltas per (function, body), folds nested calls into root call chains, and
// writes snapshots, aggregate dumps and a DOT call graph on request.
//
// Basic integration:
//
//	p, err := instrument.New(instrument.Config{Settings: cfg, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	// Host time advanced.
//	if err := p.OnTimeUpdate(networkTime); err != nil {
//	    logger.Warn().Err(err).Msg("snapshot write failed")
//	}
//
//	// Host dispatches a call.
//	res, err := p.Call(ctx, fn, frame)
//
// A Profiler is driven from the host's single execution thread and is not
// safe for concurrent use.
package instrument
