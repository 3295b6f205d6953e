package duckdb

import (
	"fmt"
	"strings"
	"time"
)

// InterpolateQuery substitutes args into the ? placeholders of query for
// logging. The result is valid DuckDB SQL but must never be executed.
func InterpolateQuery(query string, args []interface{}) string {
	var sb strings.Builder
	next := 0
	for _, r := range query {
		switch {
		case r == '?' && next < len(args):
			sb.WriteString(literal(args[next]))
			next++
		case r == '\n':
		case r == '\t':
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func literal(arg interface{}) string {
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case time.Time:
		return "'" + v.Format(time.RFC3339Nano) + "'"
	default:
		return fmt.Sprintf("'%v'", v)
	}
}
