package aggregate

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aeppert/bro-plugin-instrumentation/internal/counters"
)

// Format selects the record encoding of every output stream.
type Format int

const (
	// FormatJSON writes a JSON array with one object per record.
	FormatJSON Format = iota
	// FormatCSV writes a header row followed by one row per record.
	FormatCSV
)

// Content types accepted by ParseFormat.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// ParseFormat maps a content type to a Format. Unrecognized values select JSON.
func ParseFormat(contentType string) Format {
	switch contentType {
	case ContentTypeCSV:
		return FormatCSV
	default:
		return FormatJSON
	}
}

// ContentType returns the content type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return ContentTypeCSV
	}
	return ContentTypeJSON
}

// Fields lists the record fields in output order.
var Fields = []string{
	"name", "location", "count", "failures", "anomalies",
	"network_time", "wall_ns", "cpu_ns",
	"alloc_bytes", "freed_bytes", "alloc_objects", "freed_objects",
	"read_bytes", "write_bytes",
}

// WriteHeader writes the stream opener: "[" for JSON, the header row for CSV.
func WriteHeader(w io.Writer, f Format) error {
	if f == FormatCSV {
		return writeCSV(w, Fields)
	}
	_, err := io.WriteString(w, "[\n")
	return err
}

// WriteSeparator writes the glue between two consecutive records.
func WriteSeparator(w io.Writer, f Format) error {
	if f == FormatCSV {
		return nil
	}
	_, err := io.WriteString(w, ",\n")
	return err
}

// Finalize writes the stream closer. It must be called once per stream.
func Finalize(w io.Writer, f Format) error {
	if f == FormatCSV {
		return nil
	}
	_, err := io.WriteString(w, "\n]\n")
	return err
}

// Write serializes the row as one record.
func (r Row) Write(w io.Writer, f Format) error {
	if f == FormatCSV {
		return writeCSV(w, r.values())
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %w", r.Name, err)
	}
	_, err = w.Write(data)
	return err
}

func (r Row) values() []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		r.Name, r.Location, u(r.Count), u(r.Failures), u(r.Anomalies),
		strconv.FormatFloat(r.NetworkTime, 'f', -1, 64), u(r.WallNanos), u(r.CPUNanos),
		u(r.AllocBytes), u(r.FreedBytes), u(r.AllocObjects), u(r.FreedObjects),
		u(r.ReadBytes), u(r.WriteBytes),
	}
}

func writeCSV(w io.Writer, record []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a complete record stream, detecting the format from its first
// non-blank byte.
func Decode(r io.Reader) ([]Row, Format, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, FormatJSON, nil
			}
			return nil, FormatJSON, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			break
		}
		_, _ = br.ReadByte()
	}

	if b, _ := br.Peek(1); b[0] == '[' {
		var rows []Row
		if err := json.NewDecoder(br).Decode(&rows); err != nil {
			return nil, FormatJSON, fmt.Errorf("failed to decode json records: %w", err)
		}
		return rows, FormatJSON, nil
	}

	rows, err := decodeCSV(br)
	return rows, FormatCSV, err
}

func decodeCSV(r io.Reader) ([]Row, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to decode csv records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[name] = i
	}
	for _, f := range Fields {
		if _, ok := index[f]; !ok {
			return nil, fmt.Errorf("csv header is missing field %q", f)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for line, rec := range records[1:] {
		row, err := parseCSVRow(rec, index)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCSVRow(rec []string, index map[string]int) (Row, error) {
	var (
		row      Row
		firstErr error
	)
	u := func(field string) uint64 {
		v, err := strconv.ParseUint(rec[index[field]], 10, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("field %s: %w", field, err)
		}
		return v
	}

	row.Name = rec[index["name"]]
	row.Location = rec[index["location"]]
	row.Count = u("count")
	row.Failures = u("failures")
	row.Anomalies = u("anomalies")

	nt, err := strconv.ParseFloat(rec[index["network_time"]], 64)
	if err != nil {
		return Row{}, fmt.Errorf("field network_time: %w", err)
	}
	row.Snapshot = counters.Snapshot{
		NetworkTime:  nt,
		WallNanos:    u("wall_ns"),
		CPUNanos:     u("cpu_ns"),
		AllocBytes:   u("alloc_bytes"),
		FreedBytes:   u("freed_bytes"),
		AllocObjects: u("alloc_objects"),
		FreedObjects: u("freed_objects"),
		ReadBytes:    u("read_bytes"),
		WriteBytes:   u("write_bytes"),
	}
	return row, firstErr
}
