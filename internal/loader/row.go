package loader

import (
	"fmt"
	"io"
)

// Row is one source line as raw text cells, in file order.
type Row []string

// RowSource yields rows one at a time and returns io.EOF when exhausted. It
// is consumed once and is never rewound.
type RowSource interface {
	Next() (Row, error)
}

// RowError marks a read failure confined to a single line. Load rejects the
// line and keeps going; any other error from a RowSource ends the run.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// SliceSource serves rows from memory. Useful for tests and small fixtures.
type SliceSource struct {
	rows []Row
	i    int
}

// NewSliceSource returns a RowSource over rows.
func NewSliceSource(rows ...Row) *SliceSource { return &SliceSource{rows: rows} }

// Next implements RowSource.
func (s *SliceSource) Next() (Row, error) {
	if s.i >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.i]
	s.i++
	return r, nil
}
