// Package helpers holds output formatting and flag helpers shared by the CLI commands.
package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// Formatter defines the interface for formatting query results.
type Formatter interface {
	Format(data interface{}, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format. Tables are
// styled only when styled is set.
func NewFormatter(format OutputFormat, styled bool) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{Styled: styled}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fds fit in int
}

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data interface{}, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data interface{}, writer io.Writer) error {
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cellStyle   = lipgloss.NewStyle()
	numberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// TableFormatter formats a slice of structs as an aligned table using the
// header struct tags.
type TableFormatter struct {
	Styled bool
}

func (f *TableFormatter) Format(data interface{}, writer io.Writer) error {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return fmt.Errorf("data must be a slice")
	}
	if val.Len() == 0 {
		return nil
	}

	headers := getHeaders(val.Index(0).Type())
	rows := make([][]string, val.Len())
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for i := range rows {
		rows[i] = getRowValues(val.Index(i))
		for j, cell := range rows[i] {
			if w := lipgloss.Width(cell); w > widths[j] {
				widths[j] = w
			}
		}
	}

	if _, err := fmt.Fprintln(writer, f.line(headers, widths, true)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, f.line(row, widths, false)); err != nil {
			return err
		}
	}
	return nil
}

func (f *TableFormatter) line(cells []string, widths []int, header bool) string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		numeric := !header && isNumeric(cell)
		if numeric {
			cell = pad + cell
		} else {
			cell += pad
		}
		if f.Styled {
			switch {
			case header:
				cell = headerStyle.Render(cell)
			case numeric:
				cell = numberStyle.Render(cell)
			default:
				cell = cellStyle.Render(cell)
			}
		}
		out[i] = cell
	}
	return strings.TrimRight(strings.Join(out, "   "), " ")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// CSVFormatter formats data as CSV using struct tags.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data interface{}, writer io.Writer) error {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return fmt.Errorf("data must be a slice")
	}
	if val.Len() == 0 {
		return nil
	}

	w := csv.NewWriter(writer)
	if err := w.Write(getHeaders(val.Index(0).Type())); err != nil {
		return err
	}
	for i := 0; i < val.Len(); i++ {
		if err := w.Write(getRowValues(val.Index(i))); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func getHeaders(t reflect.Type) []string {
	var headers []string
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("header"); tag != "" {
			headers = append(headers, tag)
		}
	}
	return headers
}

func getRowValues(v reflect.Value) []string {
	var values []string
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") != "" {
			values = append(values, fmt.Sprintf("%v", v.Field(i).Interface()))
		}
	}
	return values
}
