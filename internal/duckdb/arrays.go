package duckdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Int64ArrayToString converts []int64 to a DuckDB list literal.
// Example: [1, 2, 3] -> "[1, 2, 3]"
func Int64ArrayToString(vec []int64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParseInt64List parses the output of array_to_string(list, ',').
func ParseInt64List(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid list element %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
