package storage

import (
	"database/sql"
	"fmt"
	"time"

	"co2load/internal/loader"
	"co2load/internal/schema"
)

// FormatValue renders a value read back from a datastore for display.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return loader.NullLiteral
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(schema.DateLayout)
	default:
		return fmt.Sprint(t)
	}
}

// ScanRows drains rows into display rows and closes them.
func ScanRows(rows *sql.Rows) ([]loader.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []loader.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return out, err
		}
		r := make(loader.Row, len(vals))
		for i, v := range vals {
			r[i] = FormatValue(v)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanStrings drains a single-column result into a string slice.
func ScanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
