package collection

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
)

var (
	// ErrStreamNotOpen is returned when writing to a stream whose target was never set.
	ErrStreamNotOpen = errors.New("output stream not open")
	// ErrStreamFinalized is returned when writing to a stream after Finalize.
	ErrStreamFinalized = errors.New("output stream already finalized")
)

// Stream is one output destination. It remembers whether a record was already
// written so consecutive records get the format's separator.
type Stream struct {
	name   string
	path   string
	format aggregate.Format

	closer    io.Closer
	w         *bufio.Writer
	wrote     bool
	finalized bool
}

// NewStream creates an unopened stream. name is used in error messages.
func NewStream(name string) *Stream {
	return &Stream{name: name}
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// Path returns the file the stream writes to, if any.
func (s *Stream) Path() string { return s.path }

// IsOpen reports whether the stream has a destination.
func (s *Stream) IsOpen() bool { return s.w != nil }

// Open creates or truncates path and attaches the stream to it. A previously
// attached destination is closed first.
func (s *Stream) Open(path string, format aggregate.Format, header bool) error {
	if dir := filepath.Dir(path); dir != "" {
		//nolint:gosec // G301: output directories need standard permissions
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s stream: %w", s.name, err)
		}
	}
	//nolint:gosec // G304: path is an operator-provided output target
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s stream: %w", s.name, err)
	}
	if err := s.Attach(f, format, header); err != nil {
		_ = f.Close()
		return err
	}
	s.path = path
	return nil
}

// Attach points the stream at w. When header is set the format's stream opener
// is written immediately.
func (s *Stream) Attach(w io.WriteCloser, format aggregate.Format, header bool) error {
	if s.IsOpen() {
		if err := s.Close(); err != nil {
			return err
		}
	}

	s.closer = w
	s.w = bufio.NewWriter(w)
	s.format = format
	s.wrote = false
	s.finalized = false
	s.path = ""

	if header {
		if err := aggregate.WriteHeader(s.w, format); err != nil {
			return fmt.Errorf("failed to write %s stream header: %w", s.name, err)
		}
	}
	return nil
}

func (s *Stream) check() error {
	if !s.IsOpen() {
		return fmt.Errorf("%s: %w", s.name, ErrStreamNotOpen)
	}
	if s.finalized {
		return fmt.Errorf("%s: %w", s.name, ErrStreamFinalized)
	}
	return nil
}

// WriteRecord appends a row, preceded by a separator if it is not the first
// record. A row that cannot be encoded leaves the stream untouched.
func (s *Stream) WriteRecord(r aggregate.Row) error {
	if err := s.check(); err != nil {
		return err
	}

	var record bytes.Buffer
	if err := r.Write(&record, s.format); err != nil {
		return fmt.Errorf("failed to encode %s record: %w", s.name, err)
	}

	if s.wrote {
		if err := aggregate.WriteSeparator(s.w, s.format); err != nil {
			return fmt.Errorf("failed to write %s separator: %w", s.name, err)
		}
	}
	s.wrote = true
	if _, err := s.w.Write(record.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s record: %w", s.name, err)
	}
	return nil
}

// Writer returns the raw buffered writer for free-form output.
func (s *Stream) Writer() (io.Writer, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.w, nil
}

// Flush flushes buffered output to the destination.
func (s *Stream) Flush() error {
	if !s.IsOpen() {
		return fmt.Errorf("%s: %w", s.name, ErrStreamNotOpen)
	}
	return s.w.Flush()
}

// Finalize writes the format's closer and flushes. Later writes fail.
func (s *Stream) Finalize() error {
	if err := s.check(); err != nil {
		return err
	}
	if err := aggregate.Finalize(s.w, s.format); err != nil {
		return fmt.Errorf("failed to finalize %s stream: %w", s.name, err)
	}
	s.finalized = true
	return s.w.Flush()
}

// Finalized reports whether Finalize was called since the stream was opened.
func (s *Stream) Finalized() bool { return s.finalized }

// Close flushes and closes the destination. Closing an unopened stream is a no-op.
func (s *Stream) Close() error {
	if !s.IsOpen() {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.closer.Close()
	s.w = nil
	s.closer = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s stream: %w", s.name, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s stream: %w", s.name, closeErr)
	}
	return nil
}
