package storage

import (
	"context"
	"fmt"

	"co2load/internal/loader"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// rows (aligned to columns) as one unit and return the number of rows the
// datastore reported as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// CopyBatch hands the bind values of a ValueEncoder batch to fn. A short
// count from fn is reported as an error.
func CopyBatch(ctx context.Context, fn CopyFn, columns []string, b *loader.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	rows := make([][]any, len(b.Fragments))
	for i, f := range b.Fragments {
		if len(f.Args) != len(columns) {
			return fmt.Errorf("line %d: %d values for %d columns", f.Line, len(f.Args), len(columns))
		}
		rows[i] = f.Args
	}
	n, err := fn(ctx, columns, rows)
	if err != nil {
		return err
	}
	if n >= 0 && n != int64(len(rows)) {
		return fmt.Errorf("copy: inserted %d of %d rows", n, len(rows))
	}
	return nil
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 3*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
