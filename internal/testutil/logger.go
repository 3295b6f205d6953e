package testutil

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that discards output.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(io.Discard)
}

// NewTestLoggerWithOutput returns a logger writing through t.Log.
func NewTestLoggerWithOutput(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.ConsoleWriter{Out: testLogWriter{t: t}, NoColor: true}).
		With().Timestamp().Logger()
}

type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
